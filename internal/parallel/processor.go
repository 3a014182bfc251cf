// Package parallel runs summarization batches over a bounded worker pool with
// per-article and whole-batch deadlines.
package parallel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/metrics"
	"github.com/newsblend/ingest/internal/summarize"
)

// Config controls batch scheduling.
type Config struct {
	Workers        int
	MaxBatch       int
	ArticleTimeout time.Duration
	BatchBuffer    time.Duration
	TargetWords    int
}

// Processor fans a batch of articles out to a fixed-size worker pool. One
// Processor may be reused, but each Process call owns a fresh pool whose
// lifetime is strictly bounded to that call.
type Processor struct {
	cfg        Config
	extractor  ingest.Extractor
	summarizer ingest.Summarizer
	logger     *zap.Logger
}

type unit struct {
	index   int
	article ingest.Article
}

type indexedResult struct {
	index  int
	result ingest.ProcessingResult
}

// New builds a Processor. The extractor is optional: when nil, units summarize
// the feed-supplied text carried in Article.Summary.
func New(cfg Config, extractor ingest.Extractor, summarizer ingest.Summarizer, logger *zap.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 30
	}
	if cfg.ArticleTimeout <= 0 {
		cfg.ArticleTimeout = 30 * time.Second
	}
	if cfg.BatchBuffer <= 0 {
		cfg.BatchBuffer = 10 * time.Second
	}
	if cfg.TargetWords <= 0 {
		cfg.TargetWords = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg, extractor: extractor, summarizer: summarizer, logger: logger}
}

// Process summarizes up to MaxBatch articles concurrently and returns results
// index-aligned with the (truncated) input. Units that miss their deadline get
// a synthesized fallback result; a batch deadline returns whatever completed
// plus fallbacks for the rest. Partial failure, never total failure.
func (p *Processor) Process(ctx context.Context, articles []ingest.Article) ([]ingest.ProcessingResult, ingest.BatchStats) {
	if len(articles) > p.cfg.MaxBatch {
		articles = articles[:p.cfg.MaxBatch]
	}
	n := len(articles)
	if n == 0 {
		return nil, ingest.BatchStats{}
	}

	batchStart := time.Now()
	batchCtx, cancel := context.WithTimeout(ctx, p.batchDeadline(n))
	defer cancel()

	jobs := make(chan unit, n)
	// Buffered to n so abandoned workers can always deliver without blocking.
	done := make(chan indexedResult, n)
	results := make([]ingest.ProcessingResult, n)
	completed := make([]bool, n)

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				if batchCtx.Err() != nil {
					return
				}
				done <- indexedResult{index: u.index, result: p.processUnit(batchCtx, u.article)}
			}
		}()
	}

	for i, a := range articles {
		jobs <- unit{index: i, article: a}
	}
	close(jobs)

	remaining := n
collect:
	for remaining > 0 {
		select {
		case r := <-done:
			results[r.index] = r.result
			completed[r.index] = true
			remaining--
		case <-batchCtx.Done():
			p.logger.Warn("batch deadline reached, abandoning incomplete units",
				zap.Int("remaining", remaining),
			)
			break collect
		}
	}
	cancel()

	// Bounded drain so no worker goroutine outlives this call unnoticed.
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(p.cfg.ArticleTimeout):
		p.logger.Error("worker pool did not drain within per-article timeout")
	}

	for i := range results {
		if !completed[i] {
			results[i] = p.fallbackResult(articles[i], true)
		}
	}

	stats := p.computeStats(results, time.Since(batchStart))
	metrics.SetBatchSpeedup(stats.EstimatedSpeedup)
	p.logger.Info("batch processed",
		zap.Int("total", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("fell_back", stats.FellBack),
		zap.Duration("duration", stats.Duration),
		zap.Float64("speedup", stats.EstimatedSpeedup),
	)
	return results, stats
}

// processUnit runs extract-then-summarize for one article under the per-unit
// deadline.
func (p *Processor) processUnit(ctx context.Context, article ingest.Article) ingest.ProcessingResult {
	unitCtx, cancel := context.WithTimeout(ctx, p.cfg.ArticleTimeout)
	defer cancel()

	start := time.Now()
	text := article.Summary
	if p.extractor != nil && article.URL != "" {
		if extracted := p.extractor.FullText(unitCtx, article.URL); extracted != "" {
			text = extracted
		}
	}
	if text == "" {
		text = article.Title
	}

	if unitCtx.Err() != nil {
		res := p.fallbackResult(article, true)
		res.Duration = time.Since(start)
		return res
	}

	summary, fellBack := p.summarizer.Summarize(unitCtx, text, p.cfg.TargetWords)
	result := ingest.ProcessingResult{
		Article:  article,
		Duration: time.Since(start),
		FellBack: fellBack,
	}
	result.Article.Summary = summary
	if unitCtx.Err() != nil {
		result.TimedOut = true
		result.Err = unitCtx.Err().Error()
	}
	return result
}

// fallbackResult synthesizes a deterministic result preserving the article's
// identity fields.
func (p *Processor) fallbackResult(article ingest.Article, timedOut bool) ingest.ProcessingResult {
	text := article.Summary
	if text == "" {
		text = article.Title
	}
	result := ingest.ProcessingResult{
		Article:  article,
		FellBack: true,
		TimedOut: timedOut,
	}
	result.Article.Summary = summarize.TruncateWords(summarize.CollapseWhitespace(text), p.cfg.TargetWords)
	if timedOut {
		result.Err = "processing abandoned at deadline"
	}
	return result
}

// batchDeadline scales with the sequential depth of the schedule: each worker
// processes about n/workers units back to back.
func (p *Processor) batchDeadline(n int) time.Duration {
	depth := (n + p.cfg.Workers - 1) / p.cfg.Workers
	return p.cfg.ArticleTimeout*time.Duration(depth) + p.cfg.BatchBuffer
}

func (p *Processor) computeStats(results []ingest.ProcessingResult, elapsed time.Duration) ingest.BatchStats {
	stats := ingest.BatchStats{
		Total:    len(results),
		Duration: elapsed,
	}
	var sequential time.Duration
	for _, r := range results {
		sequential += r.Duration
		if r.FellBack {
			stats.FellBack++
		} else {
			stats.Succeeded++
		}
	}
	if stats.Total > 0 {
		stats.AvgPerArticle = elapsed / time.Duration(stats.Total)
	}
	if elapsed > 0 && sequential > 0 {
		stats.EstimatedSpeedup = float64(sequential) / float64(elapsed)
	}
	return stats
}
