package badgerdb

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/DeafMist/tech-news-radar/internal/models"
)

// PutDirect writes rec outside staging, as another writer would.
func PutDirect(s *Store, rec models.NewsRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putRecord(txn, rec)
	})
}
