// Package summarize wraps an external text-summarization backend with
// timeouts, skip logic and a deterministic truncation fallback.
package summarize

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/metrics"
)

// Backend is one external summarization call: text in, bounded text out.
type Backend interface {
	Complete(ctx context.Context, text string, targetWords int) (string, error)
}

// Config controls adapter behavior.
type Config struct {
	Timeout time.Duration
}

// Adapter implements ingest.Summarizer. It holds no per-call state, so one
// instance is shared across all workers in a batch.
type Adapter struct {
	backend Backend
	cfg     Config
	logger  *zap.Logger
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// New builds an Adapter. A nil backend always falls back to truncation, which
// is the summarize=false operating mode.
func New(backend Backend, cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{backend: backend, cfg: cfg, logger: logger}
}

// Summarize condenses text to roughly targetWords words. Text already at or
// under the target is returned unchanged without a backend call. Any backend
// failure resolves to the truncation fallback; fellBack reports which path
// produced the summary.
func (a *Adapter) Summarize(ctx context.Context, text string, targetWords int) (string, bool) {
	text = CollapseWhitespace(text)
	if text == "" {
		return "", false
	}
	if WordCount(text) <= targetWords {
		return text, false
	}
	if a.backend == nil {
		metrics.ObserveSummarizeFallback("disabled")
		return TruncateWords(text, targetWords), true
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	summary, err := a.backend.Complete(callCtx, text, targetWords)
	switch {
	case err != nil:
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.ObserveSummarizeFallback(reason)
		a.logger.Warn("summarization failed, using truncation fallback", zap.Error(err))
		return TruncateWords(text, targetWords), true
	case strings.TrimSpace(summary) == "":
		metrics.ObserveSummarizeFallback("empty")
		a.logger.Warn("summarization returned empty response, using truncation fallback")
		return TruncateWords(text, targetWords), true
	default:
		return CollapseWhitespace(summary), false
	}
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// TruncateWords returns the first n words of text, appending an ellipsis when
// anything was cut. This is the deterministic fallback summary.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}

// CollapseWhitespace trims text and folds whitespace runs to single spaces.
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
