package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/DeafMist/tech-news-radar/internal/backend"
	"github.com/DeafMist/tech-news-radar/internal/config"
	"github.com/DeafMist/tech-news-radar/internal/enrich"
	"github.com/DeafMist/tech-news-radar/internal/events"
	"github.com/DeafMist/tech-news-radar/internal/extract"
	"github.com/DeafMist/tech-news-radar/internal/logger"
	"github.com/DeafMist/tech-news-radar/internal/pipeline"
	"github.com/DeafMist/tech-news-radar/internal/source"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ingest",
		Usage: "Fetch tech news sources, enrich new stories and store them",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum records created per calendar day",
				EnvVars: []string{"DAILY_NEWS_LIMIT"},
			},
			&cli.StringFlag{
				Name:    "sources",
				Aliases: []string{"s"},
				Usage:   "YAML file with the source list (built-in list when empty)",
				EnvVars: []string{"SOURCES_FILE"},
			},
		},
		Action: ingestCommand,
	}
}

func ingestCommand(c *cli.Context) error {
	log := logger.New("ingest")

	cfg, err := config.LoadIngest()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		return err
	}
	if c.IsSet("limit") {
		if c.Int("limit") < 0 {
			return errors.New("limit cannot be negative")
		}
		cfg.DailyLimit = c.Int("limit")
	}
	if path := c.String("sources"); path != "" {
		sources, err := config.LoadSources(path)
		if err != nil {
			log.Error("load sources", slog.Any("err", err))
			return err
		}
		cfg.Sources = sources
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := backend.Open(ctx, cfg.Common, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		return err
	}
	defer st.Close()

	var notifier pipeline.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer pub.Close()
		notifier = pub
		log.Info("publishing created records", slog.String("topic", cfg.KafkaTopic))
	}

	created, err := run(ctx, cfg, st, notifier, log)
	if err != nil {
		log.Error("ingestion failed", slog.Any("err", err))
		return err
	}

	log.Info("ingestion done", slog.Int("created", created))
	return nil
}

// run wires the pipeline stages from cfg and executes one batch.
func run(ctx context.Context, cfg *config.Ingest, st store.Store, notifier pipeline.Notifier, log *slog.Logger) (int, error) {
	adapter := source.NewAdapter(source.Options{
		Timeout:   cfg.FetchTimeout,
		UserAgent: cfg.FetchUserAgent,
		MaxBytes:  cfg.FetchMaxBytes,
		Limiter:   source.NewHostLimiter(cfg.FetchHostInterval),
	}, log)

	enricher := enrich.New(enrich.Config{
		APIKey:    cfg.EnrichAPIKey,
		URL:       cfg.EnrichURL,
		Model:     cfg.EnrichModel,
		Timeout:   cfg.EnrichTimeout,
		MaxTokens: cfg.EnrichMaxTokens,
	}, nil, log)
	if !enricher.Enabled() {
		log.Warn("PERPLEXITY_API_KEY not set, using fallback analysis for every record")
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithFetchConcurrency(cfg.FetchConcurrency),
		pipeline.WithEnrichWorkers(cfg.EnrichWorkers),
	}
	if notifier != nil {
		opts = append(opts, pipeline.WithNotifier(notifier))
	}

	p, err := pipeline.New(cfg.Sources, adapter, extract.New(cfg.ExtractLimit, log), enricher, st, opts...)
	if err != nil {
		return 0, err
	}

	log.Info("ingestion started",
		slog.Int("sources", len(cfg.Sources)),
		slog.Int("daily_limit", cfg.DailyLimit),
	)
	return p.Run(ctx, cfg.DailyLimit)
}
