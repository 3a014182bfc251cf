// Package ingest defines core types shared across pipeline subsystems.
package ingest

import (
	"time"
)

// SourceFormat identifies how a source's content is retrieved and parsed.
type SourceFormat string

// Source formats accepted by the pipeline. Only syndication feeds are
// implemented today; the scrape format is reserved for selector-driven sources.
const (
	FormatRSS    SourceFormat = "rss"
	FormatScrape SourceFormat = "scrape"
)

// FetchStatus records the outcome of the most recent fetch for a source.
type FetchStatus string

// Fetch status values written back onto source health fields.
const (
	FetchStatusSuccess    FetchStatus = "success"
	FetchStatusError      FetchStatus = "error"
	FetchStatusNoArticles FetchStatus = "no_articles"
)

// Source describes one configured origin of articles. The admin subsystem owns
// these records; the pipeline reads them and writes back only the health fields.
type Source struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Active    bool              `json:"active"`
	Format    SourceFormat      `json:"format"`
	Topic     string            `json:"topic,omitempty"`
	Selectors map[string]string `json:"selectors,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`

	LastFetchedAt         *time.Time  `json:"last_fetched_at,omitempty"`
	LastFetchStatus       FetchStatus `json:"last_fetch_status,omitempty"`
	LastFetchArticleCount int         `json:"last_fetch_article_count"`
	LastFetchErrors       []string    `json:"last_fetch_errors,omitempty"`
}

// RawEntry is one feed item as retrieved, before normalization. Transient.
type RawEntry struct {
	Title       string
	Link        string
	PublishedAt time.Time
	Body        string
	Category    string
}

// Article is the normalized unit flowing through extraction, summarization and
// persistence. URL is the global dedup key.
type Article struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name"`
	Topic       string    `json:"topic,omitempty"`
	Summary     string    `json:"summary"`
}

// FetchOutcome captures one source's result for a single pipeline run.
type FetchOutcome struct {
	SourceID     string        `json:"source_id"`
	SourceName   string        `json:"source_name"`
	Status       FetchStatus   `json:"status"`
	ArticleCount int           `json:"article_count"`
	Duration     time.Duration `json:"duration"`
	Err          string        `json:"error,omitempty"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// ProcessingResult is emitted per article by the parallel processor. FellBack
// distinguishes genuine summaries from truncation fallbacks; TimedOut marks
// units abandoned at the per-article or batch deadline.
type ProcessingResult struct {
	Article  Article       `json:"article"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
	FellBack bool          `json:"fell_back"`
	TimedOut bool          `json:"timed_out"`
}

// BatchStats aggregates parallel processor performance for one batch.
type BatchStats struct {
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	FellBack         int           `json:"fell_back"`
	Duration         time.Duration `json:"duration"`
	AvgPerArticle    time.Duration `json:"avg_per_article"`
	EstimatedSpeedup float64       `json:"estimated_speedup"`
}

// RunReport is returned by the coordinator alongside the article list and is
// the payload published on run completion.
type RunReport struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	Duration    time.Duration  `json:"duration"`
	Inserted    int            `json:"inserted"`
	Existing    int            `json:"existing"`
	Outcomes    []FetchOutcome `json:"outcomes"`
	MemoryAbort bool           `json:"memory_abort,omitempty"`
}
