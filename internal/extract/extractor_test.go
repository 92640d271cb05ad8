package extract_test

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/tech-news-radar/internal/extract"
	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/source"
)

const hackerNewsPage = `<html><head><title>2024-01-02 front | Hacker News</title></head><body><table>
<tr class="athing"><td class="title"><span class="titleline"><a href="https://example.com/rust">Rust 2.0  released</a><span class="sitebit"> (<a href="from?site=example.com">example.com</a>)</span></span></td></tr>
<tr class="athing"><td class="title"><span class="titleline"><a href="item?id=42">Ask HN: What are you &amp; your team building?</a></span></td></tr>
<tr class="athing"><td class="title">no link here</td></tr>
<tr class="athing"><td class="title"><span class="titleline"><a href="javascript:void(0)">Bad link</a></span></td></tr>
</table></body></html>`

const techCrunchPage = `<html><head><title>TechCrunch | Startup and Technology News</title></head><body>
<h2><a class="post-block__title__link" href="https://techcrunch.com/2024/01/02/a/">Startup raises money</a></h2>
<h2><a class="post-block__title__link" href="/2024/01/02/b/">Another startup</a></h2>
</body></html>`

const arsPage = `<html><head><title>Tech Policy | Ars Technica</title></head><body>
<article><h2><a href="https://arstechnica.com/tech-policy/1/">Court rules on encryption</a></h2></article>
<article><h2>Headline without a link</h2></article>
<article><header><h2><a href="/tech-policy/2/">FCC votes</a></h2></header></article>
</body></html>`

func pageContent(t *testing.T, name, rawURL, html string) *source.Content {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	base, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &source.Content{Source: models.Source{Name: name, Kind: models.SourcePage, URL: rawURL}, BaseURL: base, Page: doc}
}

func TestClassify(t *testing.T) {
	require.Equal(t, extract.HackerNews, extract.Classify(pageContent(t, "hn", "https://news.ycombinator.com/", hackerNewsPage).Page))
	require.Equal(t, extract.TechCrunch, extract.Classify(pageContent(t, "tc", "https://techcrunch.com/", techCrunchPage).Page))
	require.Equal(t, extract.GenericArticle, extract.Classify(pageContent(t, "ars", "https://arstechnica.com/", arsPage).Page))
	require.Equal(t, extract.GenericArticle, extract.Classify(nil))
}

func TestExtractHackerNews(t *testing.T) {
	items := extract.New(20, nil).Extract(pageContent(t, "hn", "https://news.ycombinator.com/front?day=2024-01-02", hackerNewsPage))

	require.Len(t, items, 2)
	require.Equal(t, models.NewsItem{Title: "Rust 2.0 released", URL: "https://example.com/rust", Source: "hn"}, items[0])
	require.Equal(t, "Ask HN: What are you & your team building?", items[1].Title)
	require.Equal(t, "https://news.ycombinator.com/item?id=42", items[1].URL)
	require.Empty(t, items[1].Description)
}

func TestExtractTechCrunch(t *testing.T) {
	items := extract.New(20, nil).Extract(pageContent(t, "tc", "https://techcrunch.com/", techCrunchPage))

	require.Len(t, items, 2)
	require.Equal(t, "https://techcrunch.com/2024/01/02/a/", items[0].URL)
	require.Equal(t, "https://techcrunch.com/2024/01/02/b/", items[1].URL)
}

func TestExtractGenericSkipsBlocksWithoutLink(t *testing.T) {
	items := extract.New(20, nil).Extract(pageContent(t, "ars", "https://arstechnica.com/tech-policy/", arsPage))

	require.Len(t, items, 2)
	require.Equal(t, "Court rules on encryption", items[0].Title)
	require.Equal(t, "https://arstechnica.com/tech-policy/2/", items[1].URL)
}

func TestExtractNoMatchesYieldsNothing(t *testing.T) {
	items := extract.New(20, nil).Extract(pageContent(t, "empty", "https://example.com/", `<html><head><title>Nothing</title></head><body><p>hi</p></body></html>`))
	require.Empty(t, items)
	require.Empty(t, extract.New(20, nil).Extract(nil))
}

func TestExtractRespectsLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><head><title>Blog</title></head><body>")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, `<article><h2><a href="/post/%d">Post %d</a></h2></article>`, i, i)
	}
	b.WriteString("</body></html>")

	items := extract.New(5, nil).Extract(pageContent(t, "blog", "https://blog.test/", b.String()))
	require.Len(t, items, 5)
	require.Equal(t, "https://blog.test/post/4", items[4].URL)

	items = extract.New(0, nil).Extract(pageContent(t, "blog", "https://blog.test/", b.String()))
	require.Len(t, items, extract.DefaultLimit)
}

func TestExtractFeed(t *testing.T) {
	content := &source.Content{
		Source: models.Source{Name: "lobsters", Kind: models.SourceFeed},
		Entries: []*gofeed.Item{
			{Title: "With description", Link: "https://lobste.rs/s/1", Description: "<p>Some <b>bold</b> text &amp; more</p>"},
			{Title: "From content", Link: "https://lobste.rs/s/2", Content: "<div>Body</div>"},
			{Title: "", Link: "https://lobste.rs/s/3"},
			{Title: "Relative link", Link: "/s/4"},
			nil,
		},
	}

	items := extract.New(20, nil).Extract(content)
	require.Len(t, items, 2)
	require.Equal(t, "Some bold text & more", items[0].Description)
	require.Equal(t, "Body", items[1].Description)
	require.Equal(t, "lobsters", items[1].Source)
	require.Equal(t, "feed", extract.Feed.String())
}
