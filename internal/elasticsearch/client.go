package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/processing"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":         {"type": "keyword"},
      "title":      {"type": "text"},
      "url":        {"type": "keyword"},
      "created_at": {"type": "date"},
      "analysis": {
        "properties": {
          "summary": {"type": "text"},
          "en":      {"type": "text"},
          "pl":      {"type": "text"},
          "es":      {"type": "text"}
        }
      }
    }
  }
}`

// Client wraps go-elasticsearch with helpers tailored to this project.
// Documents are keyed by a hash of their URL, which keeps URLs unique.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger

	mu     sync.Mutex
	staged []models.NewsRecord
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// FindByURL returns the stored record for url, or nil when absent.
func (c *Client) FindByURL(ctx context.Context, url string) (*models.NewsRecord, error) {
	req := esapi.GetRequest{
		Index:      c.index,
		DocumentID: processing.BuildDocumentID(url),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("get doc: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get doc failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Found  bool              `json:"found"`
		Source models.NewsRecord `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found {
		return nil, nil
	}
	return &parsed.Source, nil
}

// CountSince counts records with created_at at or after since.
func (c *Client) CountSince(ctx context.Context, since time.Time) (int, error) {
	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"created_at": map[string]any{
					"gte": since.UTC().Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal count body: %w", err)
	}

	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(c.index),
		c.es.Count.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("count failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

// Create stages rec for the next Commit and assigns its ID.
func (c *Client) Create(ctx context.Context, rec *models.NewsRecord) error {
	c.mu.Lock()
	for _, s := range c.staged {
		if s.URL == rec.URL {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", store.ErrDuplicateURL, rec.URL)
		}
	}
	c.mu.Unlock()

	existing, err := c.FindByURL(ctx, rec.URL)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", store.ErrDuplicateURL, rec.URL)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	c.mu.Lock()
	c.staged = append(c.staged, *rec)
	c.mu.Unlock()
	return nil
}

// Commit writes all staged records with one bulk request. Documents that
// already exist are skipped and their URLs returned; any other item failure
// fails the commit.
func (c *Client) Commit(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	staged := c.staged
	c.staged = nil
	c.mu.Unlock()

	if len(staged) == 0 {
		return nil, nil
	}

	urlByID := make(map[string]string, len(staged))
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range staged {
		docID := processing.BuildDocumentID(rec.URL)
		urlByID[docID] = rec.URL
		meta := map[string]any{
			"create": map[string]any{
				"_index": c.index,
				"_id":    docID,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("marshal bulk meta: %w", err)
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("marshal doc: %w", err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk create: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk create failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil, nil
	}

	var skipped []string
	for _, item := range parsed.Items {
		op, ok := item["create"]
		if !ok || op.Status < 300 {
			continue
		}
		if op.Status == http.StatusConflict {
			c.log.Warn("document already exists, skipped", slog.String("doc_id", op.ID))
			skipped = append(skipped, urlByID[op.ID])
			continue
		}
		return nil, fmt.Errorf("bulk create item %s failed: %s: %s", op.ID, op.Error.Type, op.Error.Reason)
	}
	return skipped, nil
}

// Discard drops records staged since the last Commit.
func (c *Client) Discard() {
	c.mu.Lock()
	c.staged = nil
	c.mu.Unlock()
}

// Latest returns up to limit records, newest first.
func (c *Client) Latest(ctx context.Context, limit int) ([]models.NewsRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	payload, err := json.Marshal(map[string]any{
		"size":  limit,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.NewsRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.NewsRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return items, nil
}

// DeleteOlderThan removes records created before cutoff using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"created_at": map[string]any{
					"lt": cutoff.UTC().Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	totalDeleted := int64(0)
	for {
		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
			c.es.DeleteByQuery.WithMaxDocs(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Close is a no-op; the HTTP transport needs no teardown.
func (c *Client) Close() error { return nil }
