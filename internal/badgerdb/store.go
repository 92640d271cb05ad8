// Package badgerdb stores news records in an embedded Badger database.
//
// Two key families are kept in sync:
//
//	rec/<sha1(url)>                 -> JSON record
//	ts/<created_at nanos BE><sha1>  -> sha1(url)
//
// The second family orders records by creation time for counting, listing
// and pruning.
package badgerdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/processing"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

var (
	recPrefix = []byte("rec/")
	tsPrefix  = []byte("ts/")
)

// Store is a store.Backend on top of Badger.
type Store struct {
	db  *badger.DB
	log *slog.Logger

	mu     sync.Mutex
	staged []models.NewsRecord
}

// Open opens (or creates) a database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions(path).WithLogger(nil), log)
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory(log *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), log)
}

func open(opts badger.Options, log *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{db: db, log: log}, nil
}

func recKey(docID string) []byte {
	return append(append([]byte{}, recPrefix...), docID...)
}

func tsKey(t time.Time, docID string) []byte {
	key := make([]byte, 0, len(tsPrefix)+8+len(docID))
	key = append(key, tsPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
	return append(key, docID...)
}

func (s *Store) FindByURL(_ context.Context, url string) (*models.NewsRecord, error) {
	var rec *models.NewsRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(processing.BuildDocumentID(url)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &models.NewsRecord{}
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("find by url: %w", err)
	}
	return rec, nil
}

func (s *Store) CountSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = tsPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(tsKey(since, "")); it.ValidForPrefix(tsPrefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count since: %w", err)
	}
	return n, nil
}

func (s *Store) Create(ctx context.Context, rec *models.NewsRecord) error {
	s.mu.Lock()
	for _, staged := range s.staged {
		if staged.URL == rec.URL {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", store.ErrDuplicateURL, rec.URL)
		}
	}
	s.mu.Unlock()

	existing, err := s.FindByURL(ctx, rec.URL)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", store.ErrDuplicateURL, rec.URL)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.staged = append(s.staged, *rec)
	s.mu.Unlock()
	return nil
}

// Commit writes every staged record in a single transaction. Records whose
// URL is already stored are skipped and their URLs returned.
func (s *Store) Commit(_ context.Context) ([]string, error) {
	s.mu.Lock()
	staged := s.staged
	s.staged = nil
	s.mu.Unlock()

	if len(staged) == 0 {
		return nil, nil
	}

	var skipped []string
	err := s.db.Update(func(txn *badger.Txn) error {
		skipped = skipped[:0]
		for _, rec := range staged {
			if err := putRecord(txn, rec); errors.Is(err, store.ErrDuplicateURL) {
				s.log.Warn("record already exists, skipped", slog.String("url", rec.URL))
				skipped = append(skipped, rec.URL)
				continue
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return skipped, nil
}

// Discard drops records staged since the last Commit.
func (s *Store) Discard() {
	s.mu.Lock()
	s.staged = nil
	s.mu.Unlock()
}

func putRecord(txn *badger.Txn, rec models.NewsRecord) error {
	docID := processing.BuildDocumentID(rec.URL)
	if _, err := txn.Get(recKey(docID)); err == nil {
		return store.ErrDuplicateURL
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := txn.Set(recKey(docID), payload); err != nil {
		return err
	}
	return txn.Set(tsKey(rec.CreatedAt, docID), []byte(docID))
}

func (s *Store) Latest(_ context.Context, limit int) ([]models.NewsRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	out := make([]models.NewsRecord, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = tsPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, tsPrefix...), bytes.Repeat([]byte{0xff}, 8+40)...)
		for it.Seek(seek); it.ValidForPrefix(tsPrefix) && len(out) < limit; it.Next() {
			docID, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get(recKey(string(docID)))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var rec models.NewsRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes records created before cutoff, batchSize per transaction.
func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	limit := tsKey(cutoff, "")

	var total int64
	for {
		var keys [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = tsPrefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.ValidForPrefix(tsPrefix) && len(keys) < batchSize; it.Next() {
				key := it.Item().KeyCopy(nil)
				if bytes.Compare(key, limit) >= 0 {
					break
				}
				keys = append(keys, key)
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("scan old records: %w", err)
		}
		if len(keys) == 0 {
			return total, nil
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			for _, key := range keys {
				docID := key[len(tsPrefix)+8:]
				if err := txn.Delete(recKey(string(docID))); err != nil {
					return err
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("delete old records: %w", err)
		}
		total += int64(len(keys))

		if len(keys) < batchSize {
			return total, nil
		}
	}
}

func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
