// Package store defines the persistence contract of the ingestion pipeline
// and an in-memory implementation of it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DeafMist/tech-news-radar/internal/models"
)

// ErrDuplicateURL is returned by Create when the URL is already stored or staged.
var ErrDuplicateURL = errors.New("duplicate url")

// Store is the persistence collaborator used by one ingestion run.
// Create stages a record and assigns its ID; nothing is durable until Commit.
// Commit skips staged records whose URL was stored meanwhile and returns
// their URLs. Discard drops everything staged since the last Commit.
type Store interface {
	FindByURL(ctx context.Context, url string) (*models.NewsRecord, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	Create(ctx context.Context, rec *models.NewsRecord) error
	Commit(ctx context.Context) (skipped []string, err error)
	Discard()
}

// Reader serves stored records newest first.
type Reader interface {
	Latest(ctx context.Context, limit int) ([]models.NewsRecord, error)
}

// Pruner removes records created before cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// Backend is implemented by every concrete storage engine.
type Backend interface {
	Store
	Reader
	Pruner
	Ping(ctx context.Context) error
	Close() error
}
