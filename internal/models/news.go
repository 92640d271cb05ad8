package models

import "time"

// SourceKind tells the adapter how to read an upstream source.
type SourceKind string

const (
	SourceFeed SourceKind = "feed"
	SourcePage SourceKind = "page"
)

// Source describes one configured upstream.
type Source struct {
	Name string     `yaml:"name" json:"name"`
	Kind SourceKind `yaml:"kind" json:"kind"`
	URL  string     `yaml:"url" json:"url"`
	// DayOffset selects the date substituted for a {day} placeholder in URL.
	DayOffset int `yaml:"day_offset" json:"day_offset,omitempty"`
}

// NewsItem is a candidate produced by an extractor. It lives for one run only.
type NewsItem struct {
	Title       string
	URL         string
	Description string
	Source      string
}

// Analysis is the four-field multi-language rendering attached to every record.
type Analysis struct {
	Summary string `json:"summary"`
	EN      string `json:"en"`
	PL      string `json:"pl"`
	ES      string `json:"es"`
}

// NewsRecord is the persisted form of an accepted item. URL is unique across records.
type NewsRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Analysis  Analysis  `json:"analysis"`
	CreatedAt time.Time `json:"created_at"`
}
