// Package pipeline runs one ingestion batch: fetch every source, extract
// candidates, drop duplicates, respect the daily quota, enrich and persist.
//
// Sources are fetched concurrently. Deduplication and quota reservation
// happen on the calling goroutine only, before any enrichment is issued.
// Enrichment runs on a bounded worker pool. All created records are
// committed once at the end of the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/tech-news-radar/internal/dedupe"
	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/quota"
	"github.com/DeafMist/tech-news-radar/internal/source"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

// Fetcher downloads one source.
type Fetcher interface {
	Fetch(ctx context.Context, src models.Source) (*source.Content, error)
}

// Extractor turns fetched content into candidates.
type Extractor interface {
	Extract(content *source.Content) []models.NewsItem
}

// Enricher always returns a complete analysis.
type Enricher interface {
	Enrich(ctx context.Context, title, description, url string) models.Analysis
}

// Notifier is told about records after they are committed.
type Notifier interface {
	Publish(ctx context.Context, records []models.NewsRecord) error
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	sources   []models.Source
	fetcher   Fetcher
	extractor Extractor
	enricher  Enricher
	store     store.Store
	notifier  Notifier

	fetchConcurrency int
	enrichWorkers    int
	now              func() time.Time
	logger           *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFetchConcurrency bounds the number of sources fetched at once. Default 3.
func WithFetchConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.fetchConcurrency = n
		}
	}
}

// WithEnrichWorkers bounds concurrent enrichment calls. Default 4.
func WithEnrichWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.enrichWorkers = n
		}
	}
}

// WithNotifier publishes created records after a successful commit.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a pipeline over a static list of sources.
func New(sources []models.Source, fetcher Fetcher, extractor Extractor, enricher Enricher, st store.Store, opts ...Option) (*Pipeline, error) {
	if fetcher == nil || extractor == nil || enricher == nil || st == nil {
		return nil, errors.New("pipeline: fetcher, extractor, enricher and store are required")
	}
	p := &Pipeline{
		sources:          sources,
		fetcher:          fetcher,
		extractor:        extractor,
		enricher:         enricher,
		store:            st,
		fetchConcurrency: 3,
		enrichWorkers:    4,
		now:              time.Now,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run ingests up to the remaining daily capacity and returns the number of
// records created. An error means nothing from this run was committed.
func (p *Pipeline) Run(ctx context.Context, dailyLimit int) (int, error) {
	started := p.now()

	tracker, err := quota.NewTracker(ctx, p.store, dailyLimit, started)
	if err != nil {
		return 0, err
	}
	if tracker.Capacity() == 0 {
		p.logger.Info("daily quota exhausted, nothing to do", slog.Int("daily_limit", dailyLimit))
		return 0, nil
	}

	candidates := p.collect(ctx)
	p.logger.Info("candidates collected",
		slog.Int("sources", len(p.sources)),
		slog.Int("candidates", len(candidates)),
		slog.Int("capacity", tracker.Capacity()),
	)

	pool, err := ants.NewPool(p.enrichWorkers)
	if err != nil {
		return 0, fmt.Errorf("create enrichment pool: %w", err)
	}
	defer pool.Release()

	dedup := dedupe.New(p.store)
	var created []models.NewsRecord

	// A failed create gives its slot back, so keep accepting until the
	// quota is filled or candidates run out.
	for cursor := 0; tracker.Left() > 0 && cursor < len(candidates); {
		var batch []models.NewsItem
		batch, cursor = p.accept(ctx, candidates, cursor, dedup, tracker)
		if len(batch) == 0 {
			break
		}

		analyses := p.enrichAll(ctx, pool, batch)
		if err := ctx.Err(); err != nil {
			p.store.Discard()
			return 0, fmt.Errorf("run interrupted before commit: %w", err)
		}

		for i, item := range batch {
			rec := models.NewsRecord{
				Title:     item.Title,
				URL:       item.URL,
				Analysis:  analyses[i],
				CreatedAt: p.now(),
			}
			if err := p.store.Create(ctx, &rec); err != nil {
				tracker.Release()
				p.logger.Error("create record failed",
					slog.String("url", item.URL),
					slog.String("title", item.Title),
					slog.Any("err", err),
				)
				continue
			}
			created = append(created, rec)
			p.logger.Debug("record staged", slog.String("url", rec.URL), slog.String("source", item.Source))
		}
	}

	skipped, err := p.store.Commit(ctx)
	if err != nil {
		p.store.Discard()
		return 0, fmt.Errorf("commit records: %w", err)
	}
	created = withoutURLs(created, skipped)

	p.logger.Info("ingestion finished",
		slog.Int("accepted", dedup.Seen()),
		slog.Int("skipped_at_commit", len(skipped)),
		slog.Int("created", len(created)),
		slog.Duration("took", p.now().Sub(started)),
	)

	if p.notifier != nil && len(created) > 0 {
		if err := p.notifier.Publish(ctx, created); err != nil {
			p.logger.Warn("publish created records", slog.Any("err", err))
		}
	}

	return len(created), nil
}

// withoutURLs drops records the store skipped at commit time.
func withoutURLs(records []models.NewsRecord, urls []string) []models.NewsRecord {
	if len(urls) == 0 {
		return records
	}
	drop := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		drop[u] = struct{}{}
	}
	kept := records[:0]
	for _, rec := range records {
		if _, ok := drop[rec.URL]; !ok {
			kept = append(kept, rec)
		}
	}
	return kept
}

// collect fetches every source and flattens the candidates in configured order.
func (p *Pipeline) collect(ctx context.Context) []models.NewsItem {
	perSource := make([][]models.NewsItem, len(p.sources))

	var g errgroup.Group
	g.SetLimit(p.fetchConcurrency)
	for i, src := range p.sources {
		i, src := i, src // per-iteration copies (go1.21 loop semantics)
		g.Go(func() error {
			content, err := p.fetcher.Fetch(ctx, src)
			if err != nil {
				p.logger.Warn("source skipped", slog.String("source", src.Name), slog.Any("err", err))
				return nil
			}
			perSource[i] = p.extractor.Extract(content)
			return nil
		})
	}
	_ = g.Wait()

	var all []models.NewsItem
	for _, items := range perSource {
		all = append(all, items...)
	}
	return all
}

// accept walks candidates from cursor, reserving a quota slot for each new
// URL, and returns the reserved batch with the next cursor position.
func (p *Pipeline) accept(ctx context.Context, candidates []models.NewsItem, cursor int, dedup *dedupe.Deduplicator, tracker *quota.Tracker) ([]models.NewsItem, int) {
	var batch []models.NewsItem
	for ; cursor < len(candidates) && tracker.Left() > 0; cursor++ {
		item := candidates[cursor]

		isNew, err := dedup.IsNew(ctx, item.URL)
		if err != nil {
			p.logger.Warn("dedup lookup failed, candidate skipped", slog.String("url", item.URL), slog.Any("err", err))
			continue
		}
		if !isNew {
			p.logger.Debug("duplicate candidate", slog.String("url", item.URL))
			continue
		}

		dedup.MarkSeen(item.URL)
		if !tracker.TryAcquire() {
			break
		}
		batch = append(batch, item)
	}
	return batch, cursor
}

func (p *Pipeline) enrichAll(ctx context.Context, pool *ants.Pool, batch []models.NewsItem) []models.Analysis {
	analyses := make([]models.Analysis, len(batch))

	var wg sync.WaitGroup
	for i, item := range batch {
		i, item := i, item // per-iteration copies (go1.21 loop semantics)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			analyses[i] = p.enricher.Enrich(ctx, item.Title, item.Description, item.URL)
		}
		if err := pool.Submit(task); err != nil {
			p.logger.Warn("enrichment pool rejected task, running inline", slog.Any("err", err))
			task()
		}
	}
	wg.Wait()
	return analyses
}
