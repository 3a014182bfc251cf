// Package pipeline coordinates feed retrieval, extraction, summarization and
// persistence across configured sources.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/ingest"
)

// FetcherConfig controls per-source article production.
type FetcherConfig struct {
	PerSourceCap int
	TargetWords  int
}

// Fetcher turns one source into its capped, tagged article list. When a
// summarizer is set, each article is extracted and summarized inline; when it
// is nil the feed-supplied body is carried in Summary for downstream batch
// processing.
type Fetcher struct {
	cfg        FetcherConfig
	feeds      ingest.FeedFetcher
	extractor  ingest.Extractor
	summarizer ingest.Summarizer
	logger     *zap.Logger
}

// NewFetcher builds a Fetcher. extractor and summarizer are optional.
func NewFetcher(cfg FetcherConfig, feeds ingest.FeedFetcher, extractor ingest.Extractor, summarizer ingest.Summarizer, logger *zap.Logger) *Fetcher {
	if cfg.PerSourceCap <= 0 {
		cfg.PerSourceCap = 3
	}
	if cfg.TargetWords <= 0 {
		cfg.TargetWords = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, feeds: feeds, extractor: extractor, summarizer: summarizer, logger: logger}
}

// FetchSource retrieves the source's feed, keeps the newest PerSourceCap
// entries and converts them into tagged articles.
func (f *Fetcher) FetchSource(ctx context.Context, source ingest.Source) ([]ingest.Article, error) {
	entries, err := f.feeds.Fetch(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching feed for %s: %w", source.Name, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	// Newest first; ties keep feed order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PublishedAt.After(entries[j].PublishedAt)
	})
	if len(entries) > f.cfg.PerSourceCap {
		entries = entries[:f.cfg.PerSourceCap]
	}

	articles := make([]ingest.Article, 0, len(entries))
	for _, e := range entries {
		if e.Link == "" {
			f.logger.Debug("skipping entry without link",
				zap.String("source", source.Name),
				zap.String("title", e.Title))
			continue
		}
		article := ingest.Article{
			Title:       e.Title,
			URL:         e.Link,
			PublishedAt: e.PublishedAt,
			SourceID:    source.ID,
			SourceName:  source.Name,
			Topic:       source.Topic,
			Summary:     e.Body,
		}
		if e.Category != "" && article.Topic == "" {
			article.Topic = e.Category
		}
		if f.summarizer != nil {
			article.Summary = f.summarize(ctx, article)
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// summarize runs extract-then-summarize for one article, falling back to the
// feed body and finally the title when no better text is available.
func (f *Fetcher) summarize(ctx context.Context, article ingest.Article) string {
	text := article.Summary
	if f.extractor != nil {
		if extracted := f.extractor.FullText(ctx, article.URL); extracted != "" {
			text = extracted
		}
	}
	if text == "" {
		text = article.Title
	}
	summary, fellBack := f.summarizer.Summarize(ctx, text, f.cfg.TargetWords)
	if fellBack {
		f.logger.Debug("summarizer fell back to truncation",
			zap.String("url", article.URL))
	}
	return summary
}
