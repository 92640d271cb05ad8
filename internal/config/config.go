package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/tech-news-radar/internal/models"
)

const (
	BackendElasticsearch = "elasticsearch"
	BackendBadger        = "badger"
)

// Common contains store parameters shared by every service.
type Common struct {
	StoreBackend       string
	ElasticsearchAddr  string
	ElasticsearchIndex string
	BadgerPath         string
}

// Ingest holds configuration for the ingestion run.
type Ingest struct {
	Common
	DailyLimit int
	Sources    []models.Source

	FetchTimeout      time.Duration
	FetchConcurrency  int
	FetchHostInterval time.Duration
	FetchUserAgent    string
	FetchMaxBytes     int64
	ExtractLimit      int

	EnrichAPIKey    string
	EnrichURL       string
	EnrichModel     string
	EnrichTimeout   time.Duration
	EnrichMaxTokens int
	EnrichWorkers   int

	KafkaBrokers []string
	KafkaTopic   string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() (Common, error) {
	c := Common{
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendElasticsearch)),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "tech_news"),
		BadgerPath:         getEnv("BADGER_PATH", "data/news"),
	}
	switch c.StoreBackend {
	case BackendElasticsearch, BackendBadger:
	default:
		return c, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendElasticsearch, BackendBadger, c.StoreBackend)
	}
	return c, nil
}

// LoadIngest builds an Ingest config from environment variables.
func LoadIngest() (*Ingest, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Ingest{
		Common:            common,
		DailyLimit:        getInt("DAILY_NEWS_LIMIT", 20),
		FetchTimeout:      getDuration("FETCH_TIMEOUT", "10s"),
		FetchConcurrency:  getInt("FETCH_CONCURRENCY", 3),
		FetchHostInterval: getDuration("FETCH_HOST_INTERVAL", "1s"),
		FetchUserAgent:    getEnv("FETCH_USER_AGENT", "tech-news-radar/1.0 (+https://github.com/DeafMist/tech-news-radar)"),
		FetchMaxBytes:     int64(getInt("FETCH_MAX_BYTES", 5<<20)),
		ExtractLimit:      getInt("EXTRACT_LIMIT", 20),
		EnrichAPIKey:      strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY")),
		EnrichURL:         getEnv("ENRICH_API_URL", "https://api.perplexity.ai/chat/completions"),
		EnrichModel:       getEnv("ENRICH_MODEL", "sonar"),
		EnrichTimeout:     getDuration("ENRICH_TIMEOUT", "15s"),
		EnrichMaxTokens:   getInt("ENRICH_MAX_TOKENS", 500),
		EnrichWorkers:     getInt("ENRICH_WORKERS", 4),
		KafkaBrokers:      splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "news_enriched"),
	}

	if path := getEnv("SOURCES_FILE", ""); path != "" {
		sources, err := LoadSources(path)
		if err != nil {
			return nil, err
		}
		c.Sources = sources
	} else {
		c.Sources = DefaultSources()
	}

	if c.DailyLimit < 0 {
		return nil, fmt.Errorf("DAILY_NEWS_LIMIT cannot be negative")
	}
	if c.FetchTimeout < time.Second || c.FetchTimeout > 30*time.Second {
		return nil, fmt.Errorf("FETCH_TIMEOUT must be between 1s and 30s")
	}
	if c.FetchConcurrency <= 0 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	if c.FetchMaxBytes <= 0 {
		return nil, fmt.Errorf("FETCH_MAX_BYTES must be positive")
	}
	if c.ExtractLimit <= 0 {
		return nil, fmt.Errorf("EXTRACT_LIMIT must be positive")
	}
	if c.EnrichTimeout <= 0 || c.EnrichTimeout > 60*time.Second {
		return nil, fmt.Errorf("ENRICH_TIMEOUT must be between 0 and 60s")
	}
	if c.EnrichWorkers <= 0 {
		return nil, fmt.Errorf("ENRICH_WORKERS must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:      common,
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Retention{
		Common:    common,
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
