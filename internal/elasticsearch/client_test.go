package elasticsearch_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/tech-news-radar/internal/elasticsearch"
	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/processing"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

// fakeES answers the handful of endpoints the client uses.
type fakeES struct {
	mu       sync.Mutex
	docs     map[string]json.RawMessage
	bulkDocs int
	conflict string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/news/_doc/"):
		id := strings.TrimPrefix(r.URL.Path, "/news/_doc/")
		doc, ok := f.docs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"found":false}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"found": true, "_source": doc})
	case strings.HasSuffix(r.URL.Path, "/_count"):
		_, _ = w.Write([]byte(`{"count":4}`))
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		var items []map[string]any
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			var meta map[string]map[string]string
			if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			scanner.Scan()
			id := meta["create"]["_id"]
			if id == f.conflict {
				items = append(items, map[string]any{"create": map[string]any{"_id": id, "status": 409, "error": map[string]any{"type": "version_conflict_engine_exception"}}})
				continue
			}
			f.docs[id] = append(json.RawMessage(nil), scanner.Bytes()...)
			f.bulkDocs++
			items = append(items, map[string]any{"create": map[string]any{"_id": id, "status": 201}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"errors": f.conflict != "", "items": items})
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unexpected request"}`))
	}
}

func newClient(t *testing.T, fake *fakeES) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := elasticsearch.New(srv.URL, "news", nil)
	require.NoError(t, err)
	return c
}

func TestCreateAndCommit(t *testing.T) {
	fake := &fakeES{docs: map[string]json.RawMessage{}}
	c := newClient(t, fake)
	ctx := context.Background()

	rec := &models.NewsRecord{
		Title:     "Rust 2.0",
		URL:       "https://x/1",
		Analysis:  models.Analysis{Summary: "s", EN: "e", PL: "p", ES: "x"},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, c.Create(ctx, rec))
	require.NotEmpty(t, rec.ID)
	require.ErrorIs(t, c.Create(ctx, &models.NewsRecord{URL: "https://x/1"}), store.ErrDuplicateURL)

	got, err := c.FindByURL(ctx, "https://x/1")
	require.NoError(t, err)
	require.Nil(t, got, "staged records are not visible before commit")

	skipped, err := c.Commit(ctx)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Equal(t, 1, fake.bulkDocs)

	got, err = c.FindByURL(ctx, "https://x/1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, "p", got.Analysis.PL)

	require.ErrorIs(t, c.Create(ctx, &models.NewsRecord{URL: "https://x/1"}), store.ErrDuplicateURL)
	skipped, err = c.Commit(ctx)
	require.NoError(t, err, "empty commit is a no-op")
	require.Empty(t, skipped)
}

func TestCommitSkipsConflicts(t *testing.T) {
	fake := &fakeES{docs: map[string]json.RawMessage{}, conflict: processing.BuildDocumentID("https://x/race")}
	c := newClient(t, fake)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, &models.NewsRecord{URL: "https://x/race"}))
	require.NoError(t, c.Create(ctx, &models.NewsRecord{URL: "https://x/ok"}))

	skipped, err := c.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"https://x/race"}, skipped)
	require.Equal(t, 1, fake.bulkDocs)
}

func TestDiscardDropsStaged(t *testing.T) {
	fake := &fakeES{docs: map[string]json.RawMessage{}}
	c := newClient(t, fake)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, &models.NewsRecord{URL: "https://x/1"}))
	c.Discard()

	skipped, err := c.Commit(ctx)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Zero(t, fake.bulkDocs)
}

func TestCountSince(t *testing.T) {
	c := newClient(t, &fakeES{docs: map[string]json.RawMessage{}})

	n, err := c.CountSince(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 4, n)
}
