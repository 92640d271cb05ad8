package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeafMist/tech-news-radar/internal/badgerdb"
	"github.com/DeafMist/tech-news-radar/internal/config"
	"github.com/DeafMist/tech-news-radar/internal/elasticsearch"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

// Open connects the storage engine selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Common, log *slog.Logger) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendBadger:
		s, err := badgerdb.Open(cfg.BadgerPath, log)
		if err != nil {
			return nil, err
		}
		log.Info("using badger store", slog.String("path", cfg.BadgerPath))
		return s, nil
	case config.BackendElasticsearch, "":
		c, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		if err := c.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		log.Info("using elasticsearch store",
			slog.String("addr", cfg.ElasticsearchAddr),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
