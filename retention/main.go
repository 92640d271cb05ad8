package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/tech-news-radar/internal/backend"
	"github.com/DeafMist/tech-news-radar/internal/config"
	"github.com/DeafMist/tech-news-radar/internal/logger"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

const maxConnectRetries = 10

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := connect(ctx, log, cfg.Common)
	if err != nil {
		log.Error("failed to open store after retries", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.String("backend", cfg.StoreBackend),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	runOnce(ctx, log, st, cfg, time.Now())

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case now := <-ticker.C:
			runOnce(ctx, log, st, cfg, now)
		}
	}
}

// connect opens the store with exponential backoff capped at 30s.
func connect(ctx context.Context, log *slog.Logger, cfg config.Common) (store.Backend, error) {
	retryDelay := 2 * time.Second
	var lastErr error
	for i := 0; i < maxConnectRetries; i++ {
		openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		st, err := backend.Open(openCtx, cfg, log)
		cancel()
		if err == nil {
			return st, nil
		}
		lastErr = err
		log.Warn("store not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxConnectRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil, lastErr
}

func runOnce(ctx context.Context, log *slog.Logger, pruner store.Pruner, cfg *config.Retention, now time.Time) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cutoff := now.Add(-cfg.MaxAge)
	deleted, err := pruner.DeleteOlderThan(subCtx, cutoff, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted), slog.Time("cutoff", cutoff))
	} else {
		log.Debug("retention run completed, no old records found")
	}
	return deleted
}
