package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/tech-news-radar/internal/models"
)

type sourcesFile struct {
	Sources []models.Source `yaml:"sources"`
}

// DefaultSources is the built-in source list used when SOURCES_FILE is not set.
func DefaultSources() []models.Source {
	return []models.Source{
		{Name: "hackernews", Kind: models.SourcePage, URL: "https://news.ycombinator.com/front?day={day}", DayOffset: 2},
		{Name: "techcrunch", Kind: models.SourcePage, URL: "https://techcrunch.com/"},
		{Name: "arstechnica", Kind: models.SourcePage, URL: "https://arstechnica.com/tech-policy/"},
	}
}

// LoadSources reads and validates a YAML sources file.
func LoadSources(path string) ([]models.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a sources document. Kind defaults to page.
func ParseSources(data []byte) ([]models.Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file must list at least one source")
	}

	out := make([]models.Source, 0, len(f.Sources))
	for i, src := range f.Sources {
		src.Kind = models.SourceKind(strings.ToLower(strings.TrimSpace(string(src.Kind))))
		if src.Kind == "" {
			src.Kind = models.SourcePage
		}
		if src.Kind != models.SourceFeed && src.Kind != models.SourcePage {
			return nil, fmt.Errorf("source %d: unknown kind %q", i, src.Kind)
		}
		u, err := url.Parse(strings.ReplaceAll(src.URL, "{day}", "2006-01-02"))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("source %d: url %q must be absolute http(s)", i, src.URL)
		}
		if src.DayOffset < 0 {
			return nil, fmt.Errorf("source %d: day_offset cannot be negative", i)
		}
		if src.Name == "" {
			src.Name = u.Host
		}
		out = append(out, src)
	}
	return out, nil
}
