package dedupe

import (
	"context"
	"fmt"
	"sync"

	"github.com/DeafMist/tech-news-radar/internal/models"
)

// URLFinder looks a record up by its URL. A nil record means absent.
type URLFinder interface {
	FindByURL(ctx context.Context, url string) (*models.NewsRecord, error)
}

// Deduplicator filters candidates against the store and against URLs
// already accepted in the current run. URLs compare by exact string.
type Deduplicator struct {
	mu     sync.Mutex
	store  URLFinder
	stored map[string]bool
	seen   map[string]struct{}
}

// New creates a deduplicator for a single run.
func New(store URLFinder) *Deduplicator {
	return &Deduplicator{
		store:  store,
		stored: make(map[string]bool),
		seen:   make(map[string]struct{}),
	}
}

// IsNew reports whether url is neither stored nor already accepted in this run.
// Store answers are memoized for the lifetime of the run.
// It does not mark the url as seen; use MarkSeen() to record it.
func (d *Deduplicator) IsNew(ctx context.Context, url string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[url]; ok {
		return false, nil
	}
	if exists, ok := d.stored[url]; ok {
		return !exists, nil
	}
	if d.store == nil {
		return true, nil
	}

	rec, err := d.store.FindByURL(ctx, url)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", url, err)
	}
	d.stored[url] = rec != nil
	return rec == nil, nil
}

// MarkSeen records that url was accepted in this run.
func (d *Deduplicator) MarkSeen(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen[url] = struct{}{}
}

// Seen returns how many URLs were accepted in this run.
func (d *Deduplicator) Seen() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}
