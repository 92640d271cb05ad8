package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"github.com/DeafMist/tech-news-radar/internal/models"
)

// ErrFetch marks a recoverable, source-scoped failure.
var ErrFetch = errors.New("fetch source")

// Content is the raw material fetched for one source.
// Exactly one of Entries and Page is set.
type Content struct {
	Source  models.Source
	BaseURL *url.URL
	Entries []*gofeed.Item
	Page    *goquery.Document
}

// Options tune the adapter.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	Limiter   *HostLimiter
	Client    *http.Client
	Clock     func() time.Time
}

// Adapter fetches and pre-parses upstream sources.
type Adapter struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBytes  int64
	limiter   *HostLimiter
	now       func() time.Time
	log       *slog.Logger
}

// NewAdapter builds an adapter. Zero options fall back to a 10s timeout and a 5 MiB body cap.
func NewAdapter(opts Options, log *slog.Logger) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Adapter{
		client:    opts.Client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		limiter:   opts.Limiter,
		now:       opts.Clock,
		log:       log,
	}
}

// ResolveURL substitutes the {day} placeholder with the local date DayOffset days ago.
func ResolveURL(src models.Source, now time.Time) string {
	if !strings.Contains(src.URL, "{day}") {
		return src.URL
	}
	day := now.AddDate(0, 0, -src.DayOffset).Format("2006-01-02")
	return strings.ReplaceAll(src.URL, "{day}", day)
}

// Fetch downloads one source and parses it according to its kind.
// Every failure is wrapped in ErrFetch; callers treat it as zero items.
func (a *Adapter) Fetch(ctx context.Context, src models.Source) (*Content, error) {
	target := ResolveURL(src, a.now())
	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, src.Name, err)
	}

	body, err := a.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, src.Name, err)
	}

	content := &Content{Source: src, BaseURL: base}
	switch src.Kind {
	case models.SourceFeed:
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w %s: parse feed: %v", ErrFetch, src.Name, err)
		}
		content.Entries = feed.Items
		a.log.Debug("feed fetched", slog.String("source", src.Name), slog.Int("entries", len(feed.Items)))
	default:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w %s: parse html: %v", ErrFetch, src.Name, err)
		}
		content.Page = doc
		a.log.Debug("page fetched", slog.String("source", src.Name), slog.Int("bytes", len(body)))
	}
	return content, nil
}

func (a *Adapter) get(ctx context.Context, target string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, target); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	return io.ReadAll(io.LimitReader(reader, a.maxBytes))
}
