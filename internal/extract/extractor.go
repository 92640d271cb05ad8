// Package extract turns fetched source content into candidate news items.
//
// Page-scraped items never carry a description: listing pages only expose a
// headline and a link. Feed items carry the entry description when present.
package extract

import (
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/processing"
	"github.com/DeafMist/tech-news-radar/internal/source"
)

// DefaultLimit caps the candidates taken from a single source.
const DefaultLimit = 20

// Strategy names one extraction rule from a closed set.
type Strategy int

const (
	GenericArticle Strategy = iota
	HackerNews
	TechCrunch
	Feed
)

func (s Strategy) String() string {
	switch s {
	case HackerNews:
		return "hackernews"
	case TechCrunch:
		return "techcrunch"
	case Feed:
		return "feed"
	default:
		return "generic_article"
	}
}

// Classify picks the strategy for a page by sniffing its <title>.
func Classify(doc *goquery.Document) Strategy {
	if doc == nil {
		return GenericArticle
	}
	title := doc.Find("title").First().Text()
	switch {
	case strings.Contains(title, "Hacker News"):
		return HackerNews
	case strings.Contains(title, "TechCrunch"):
		return TechCrunch
	default:
		return GenericArticle
	}
}

// Extractor applies the matching strategy to fetched content.
type Extractor struct {
	limit    int
	sanitize *bluemonday.Policy
	log      *slog.Logger
}

// New returns an extractor that yields at most limit items per source.
func New(limit int, log *slog.Logger) *Extractor {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{limit: limit, sanitize: bluemonday.StrictPolicy(), log: log}
}

// Extract never fails; malformed entries are skipped.
func (e *Extractor) Extract(content *source.Content) []models.NewsItem {
	if content == nil {
		return nil
	}

	var (
		strategy Strategy
		items    []models.NewsItem
	)
	switch {
	case content.Entries != nil:
		strategy = Feed
		items = e.fromFeed(content.Entries)
	case content.Page != nil:
		strategy = Classify(content.Page)
		items = e.fromPage(strategy, content.Page, content.BaseURL)
	}

	for i := range items {
		items[i].Source = content.Source.Name
	}

	e.log.Debug("extracted candidates",
		slog.String("source", content.Source.Name),
		slog.String("strategy", strategy.String()),
		slog.Int("count", len(items)),
	)
	return items
}

func (e *Extractor) fromPage(strategy Strategy, doc *goquery.Document, base *url.URL) []models.NewsItem {
	var outer, inner string
	switch strategy {
	case HackerNews:
		outer, inner = "tr.athing", ".titleline a"
	case TechCrunch:
		outer, inner = "a.post-block__title__link", ""
	default:
		outer, inner = "article", "h2 a"
	}

	items := make([]models.NewsItem, 0, e.limit)
	doc.Find(outer).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		link := block
		if inner != "" {
			link = block.Find(inner).First()
		}
		if link.Length() == 0 {
			return true
		}
		href, _ := link.Attr("href")
		if item, ok := e.candidate(link.Text(), href, "", base); ok {
			items = append(items, item)
		}
		return len(items) < e.limit
	})
	return items
}

func (e *Extractor) fromFeed(entries []*gofeed.Item) []models.NewsItem {
	items := make([]models.NewsItem, 0, e.limit)
	for _, entry := range entries {
		if len(items) >= e.limit {
			break
		}
		if entry == nil {
			continue
		}
		desc := entry.Description
		if desc == "" {
			desc = entry.Content
		}
		if item, ok := e.candidate(entry.Title, entry.Link, e.sanitize.Sanitize(desc), nil); ok {
			items = append(items, item)
		}
	}
	return items
}

func (e *Extractor) candidate(title, href, desc string, base *url.URL) (models.NewsItem, bool) {
	title = processing.CleanText(title)
	if title == "" {
		return models.NewsItem{}, false
	}
	abs, ok := processing.AbsoluteURL(base, href)
	if !ok {
		e.log.Debug("skipping candidate without absolute url", slog.String("title", title), slog.String("href", href))
		return models.NewsItem{}, false
	}
	return models.NewsItem{
		Title:       title,
		URL:         abs,
		Description: processing.CleanText(desc),
	}, true
}
