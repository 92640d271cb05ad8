package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/tech-news-radar/internal/models"
)

// Memory is a Backend kept in process memory.
type Memory struct {
	mu      sync.Mutex
	records map[string]models.NewsRecord
	staged  []models.NewsRecord
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.NewsRecord)}
}

func (m *Memory) FindByURL(_ context.Context, url string) (*models.NewsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[url]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) CountSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rec := range m.records {
		if !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Create(_ context.Context, rec *models.NewsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.URL]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateURL, rec.URL)
	}
	for _, s := range m.staged {
		if s.URL == rec.URL {
			return fmt.Errorf("%w: %s", ErrDuplicateURL, rec.URL)
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.staged = append(m.staged, *rec)
	return nil
}

func (m *Memory) Commit(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []string
	for _, rec := range m.staged {
		if _, ok := m.records[rec.URL]; ok {
			skipped = append(skipped, rec.URL)
			continue
		}
		m.records[rec.URL] = rec
	}
	m.staged = nil
	return skipped, nil
}

func (m *Memory) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = nil
}

// Insert stores rec immediately, bypassing staging. It mimics a concurrent
// writer and replaces any record under the same URL.
func (m *Memory) Insert(rec models.NewsRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.URL] = rec
}

func (m *Memory) Latest(_ context.Context, limit int) ([]models.NewsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.NewsRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].URL < out[j].URL
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteOlderThan(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for url, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.records, url)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Len returns the number of committed records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.records)
}
