package ingest

import (
	"context"
	"time"
)

// FeedFetcher retrieves and parses a syndication feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]RawEntry, error)
}

// Extractor pulls the main readable text out of an article page. Extraction is
// best-effort: failures yield an empty string, never an error.
type Extractor interface {
	FullText(ctx context.Context, url string) string
}

// Summarizer condenses text to roughly targetWords words. Implementations must
// be safe for concurrent use and must return non-empty output for non-empty
// input, falling back to truncation when the backend is unavailable.
type Summarizer interface {
	Summarize(ctx context.Context, text string, targetWords int) (summary string, fellBack bool)
}

// ArticleStore persists articles and per-source health.
type ArticleStore interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, article Article) error
	UpdateSourceHealth(ctx context.Context, sourceID string, outcome FetchOutcome) error
}

// SourceFetcher produces the capped article list for one source. The caching
// decorator wraps any implementation of this.
type SourceFetcher interface {
	FetchSource(ctx context.Context, source Source) ([]Article, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PolitenessPolicy is an optional pre-fetch admission hook.
type PolitenessPolicy interface {
	AllowFetch(url string) bool
}

// MemoryGuard reports the process memory safety tier. Advisory: callers decide
// whether and when to consult it.
type MemoryGuard interface {
	Tier() MemoryTier
	ForceGC()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// RunIDGenerator produces run IDs (UUIDs).
type RunIDGenerator interface {
	NewID() (string, error)
}

// MemoryTier classifies current process memory pressure.
type MemoryTier int

// Memory tiers, ordered by severity.
const (
	MemoryOK MemoryTier = iota
	MemoryWarning
	MemoryDanger
	MemoryCritical
)

// String returns the tier label used in logs and metrics.
func (t MemoryTier) String() string {
	switch t {
	case MemoryOK:
		return "ok"
	case MemoryWarning:
		return "warning"
	case MemoryDanger:
		return "danger"
	case MemoryCritical:
		return "critical"
	default:
		return "unknown"
	}
}
