// Package enrich attaches a multi-language analysis to accepted news items.
//
// Enrich is total: when the summarization service is not configured, fails,
// or answers with anything but the four-field shape, a deterministic
// fallback derived from the title is returned instead. There is no retry
// within a call.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/processing"
)

const (
	// FallbackLength is the number of title runes kept by the fallback.
	FallbackLength = 100

	defaultModel     = "sonar"
	defaultMaxTokens = 500
	defaultTimeout   = 15 * time.Second

	// maxResponseSize limits the service response body.
	maxResponseSize = 1 << 20
)

var (
	errNoChoices  = errors.New("response has no choices")
	errIncomplete = errors.New("analysis is missing a required string field")
)

// Config describes the external summarization service.
// An empty APIKey disables the external call.
type Config struct {
	APIKey    string
	URL       string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Enricher produces an Analysis for each accepted item.
type Enricher struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// New builds an enricher. client may be nil.
func New(cfg Config, client *http.Client, log *slog.Logger) *Enricher {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Enricher{cfg: cfg, client: client, log: log}
}

// Enabled reports whether the external service will be called.
func (e *Enricher) Enabled() bool {
	return e.cfg.APIKey != "" && e.cfg.URL != ""
}

// Enrich always returns a complete Analysis.
func (e *Enricher) Enrich(ctx context.Context, title, description, url string) models.Analysis {
	if !e.Enabled() {
		return Fallback(title)
	}

	analysis, err := e.request(ctx, title, description)
	if err != nil {
		e.log.Warn("enrichment failed, using fallback",
			slog.String("url", url),
			slog.Any("err", err),
		)
		return Fallback(title)
	}
	return analysis
}

func (e *Enricher) request(ctx context.Context, title, description string) (models.Analysis, error) {
	payload, err := json.Marshal(chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(title, description)},
		},
		MaxTokens: e.cfg.MaxTokens,
	})
	if err != nil {
		return models.Analysis{}, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return models.Analysis{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return models.Analysis{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.Analysis{}, fmt.Errorf("service returned status %d: %s", resp.StatusCode, processing.Truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.Analysis{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return models.Analysis{}, errNoChoices
	}

	return ParseAnalysis(parsed.Choices[0].Message.Content)
}

// ParseAnalysis decodes generated text into an Analysis. All four fields
// must be present and be JSON strings.
func ParseAnalysis(text string) (models.Analysis, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &fields); err != nil {
		return models.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}

	var out models.Analysis
	for key, dst := range map[string]*string{
		"summary": &out.Summary,
		"en":      &out.EN,
		"pl":      &out.PL,
		"es":      &out.ES,
	} {
		v, ok := fields[key].(string)
		if !ok {
			return models.Analysis{}, fmt.Errorf("%w: %s", errIncomplete, key)
		}
		*dst = v
	}
	return out, nil
}

// Fallback derives an Analysis from the title alone.
func Fallback(title string) models.Analysis {
	short := processing.Truncate(title, FallbackLength) + "..."
	return models.Analysis{
		Summary: short,
		EN:      short,
		PL:      "PL: " + short,
		ES:      "ES: " + short,
	}
}
