package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// LocationType tells where a keyword match was found
type LocationType string

const (
	// LocationDirectURL is a match on the discovered URL itself
	LocationDirectURL LocationType = "direct_url"
	// LocationRedirectedURL is a match on the terminal URL of a redirect chain
	LocationRedirectedURL LocationType = "redirected_url"
	// LocationPageContent is a match in the fetched page body
	LocationPageContent LocationType = "page_content"
)

// TimestampLayout is the export format for Result timestamps
const TimestampLayout = "2006-01-02 15:04:05"

// KeywordDelimiter joins matched keywords in exported records
const KeywordDelimiter = ", "

// ContentSampleLimit caps the exported content sample
const ContentSampleLimit = 300

// ErrNoKeywords is returned when a Result would carry no matched keyword
var ErrNoKeywords = errors.New("result requires at least one matched keyword")

// Result is one keyword match found during a crawl
type Result struct {
	SourceURL    string       `json:"source_url"`
	MatchedURL   string       `json:"matched_url"`
	Keywords     []string     `json:"keywords"`
	LocationType LocationType `json:"location_type"`
	Element      string       `json:"element"`
	Attribute    string       `json:"attribute"`
	Content      string       `json:"content"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewResult builds a Result, rejecting an empty keyword list
func NewResult(source, matched string, keywords []string, loc LocationType, element, attribute, content string, at time.Time) (Result, error) {
	if len(keywords) == 0 {
		return Result{}, ErrNoKeywords
	}
	kw := make([]string, len(keywords))
	copy(kw, keywords)
	return Result{
		SourceURL:    source,
		MatchedURL:   matched,
		Keywords:     kw,
		LocationType: loc,
		Element:      element,
		Attribute:    attribute,
		Content:      content,
		Timestamp:    at,
	}, nil
}

// Record is the flat export row for a Result
type Record struct {
	SourceURL     string `json:"source_url"`
	MatchedURL    string `json:"matched_url"`
	Keyword       string `json:"keyword"`
	LocationType  string `json:"location_type"`
	Element       string `json:"element"`
	Attribute     string `json:"attribute"`
	ContentSample string `json:"content_sample"`
	Timestamp     string `json:"timestamp"`
}

// RecordHeader lists the export columns in order
var RecordHeader = []string{
	"source_url", "matched_url", "keyword",
	"location_type", "element", "attribute",
	"content_sample", "timestamp",
}

// Record flattens r for tabular export
func (r Result) Record() Record {
	sample := r.Content
	if len(sample) > ContentSampleLimit {
		cut := ContentSampleLimit
		for cut > 0 && !utf8.RuneStart(sample[cut]) {
			cut--
		}
		sample = sample[:cut]
	}
	return Record{
		SourceURL:     r.SourceURL,
		MatchedURL:    r.MatchedURL,
		Keyword:       strings.Join(r.Keywords, KeywordDelimiter),
		LocationType:  string(r.LocationType),
		Element:       r.Element,
		Attribute:     r.Attribute,
		ContentSample: sample,
		Timestamp:     r.Timestamp.Format(TimestampLayout),
	}
}

// Row returns the record fields in RecordHeader order
func (r Record) Row() []string {
	return []string{
		r.SourceURL, r.MatchedURL, r.Keyword,
		r.LocationType, r.Element, r.Attribute,
		r.ContentSample, r.Timestamp,
	}
}

// CrawlResult contains the outcome of one crawl
type CrawlResult struct {
	ID           string    `json:"id"`
	Seed         string    `json:"seed"`
	Domain       string    `json:"domain"`
	State        string    `json:"state"`
	PagesCrawled int       `json:"pages_crawled"`
	ErrorCount   int       `json:"error_count"`
	Pending      int       `json:"pending"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Results      []Result  `json:"results"`
}

// Summary aggregates a crawl's results for reporting
type Summary struct {
	Seed          string         `json:"seed"`
	Domain        string         `json:"domain"`
	State         string         `json:"state"`
	PagesCrawled  int            `json:"pages_crawled"`
	TotalMatches  int            `json:"total_matches"`
	ByKeyword     []Count        `json:"by_keyword"`
	ByLocation    []Count        `json:"by_location"`
	TopDomains    []Count        `json:"top_domains"`
	Redirects     []RedirectPair `json:"redirects"`
	GeneratedAt   time.Time      `json:"generated_at"`
	KeywordsFound bool           `json:"keywords_found"`
}

// Count is a labelled tally
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// RedirectPair records a disguised link and where it landed
type RedirectPair struct {
	From string `json:"from"`
	To   string `json:"to"`
}
