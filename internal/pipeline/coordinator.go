package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/metrics"
	"github.com/newsblend/ingest/internal/parallel"
)

// Config controls coordinator behavior for one deployment mode.
type Config struct {
	// GlobalMax caps the total number of articles a run may carry forward
	// after all sources are concatenated.
	GlobalMax int
	// SourceTimeout bounds each source's fetch-and-process phase.
	SourceTimeout time.Duration
	// Topic names the publisher topic for run-completion events.
	Topic string
}

// Coordinator drives a full pipeline run: per-source fetch with failure
// isolation, optional batch summarization, global capping, idempotent
// persistence and health bookkeeping.
type Coordinator struct {
	cfg       Config
	fetcher   ingest.SourceFetcher
	processor *parallel.Processor
	store     ingest.ArticleStore
	guard     ingest.MemoryGuard
	publisher ingest.Publisher
	clock     ingest.Clock
	ids       ingest.RunIDGenerator
	logger    *zap.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithProcessor installs the batch processor; when set, fetched articles carry
// feed text and summarization happens in one parallel pass after the global cap.
func WithProcessor(p *parallel.Processor) Option {
	return func(c *Coordinator) { c.processor = p }
}

// WithMemoryGuard installs the advisory memory guard consulted between sources.
func WithMemoryGuard(g ingest.MemoryGuard) Option {
	return func(c *Coordinator) { c.guard = g }
}

// WithPublisher installs the run-event publisher.
func WithPublisher(p ingest.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// New builds a Coordinator.
func New(cfg Config, fetcher ingest.SourceFetcher, store ingest.ArticleStore, clock ingest.Clock, ids ingest.RunIDGenerator, logger *zap.Logger, opts ...Option) *Coordinator {
	if cfg.GlobalMax <= 0 {
		cfg.GlobalMax = 3
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		clock:   clock,
		ids:     ids,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every active source and returns the articles the run carried
// forward plus a report of per-source outcomes. A failing source never aborts
// the run; only a critical memory tier stops it early, and then the report
// still covers everything collected so far.
func (c *Coordinator) Run(ctx context.Context, sources []ingest.Source) ([]ingest.Article, ingest.RunReport) {
	started := c.clock.Now()
	report := ingest.RunReport{
		RunID:     c.runID(),
		StartedAt: started,
	}
	log := c.logger.With(zap.String("run_id", report.RunID))
	log.Info("pipeline run starting", zap.Int("sources", len(sources)))

	var collected []ingest.Article
	for i, source := range sources {
		if !source.Active {
			log.Debug("skipping inactive source", zap.String("source", source.Name))
			continue
		}
		if c.memoryCritical(log) {
			report.MemoryAbort = true
			report.Outcomes = append(report.Outcomes, c.abortedOutcomes(sources[i:])...)
			break
		}

		outcome, articles := c.processSource(ctx, source)
		report.Outcomes = append(report.Outcomes, outcome)
		metrics.ObserveSource(string(outcome.Status))
		c.recordHealth(ctx, log, source.ID, outcome)
		collected = append(collected, articles...)
	}

	if len(collected) > c.cfg.GlobalMax {
		collected = collected[:c.cfg.GlobalMax]
	}

	if c.processor != nil && len(collected) > 0 && !report.MemoryAbort {
		results, _ := c.processor.Process(ctx, collected)
		collected = collected[:0]
		for _, r := range results {
			collected = append(collected, r.Article)
		}
	}

	report.Inserted, report.Existing = c.persist(ctx, log, collected)
	report.Duration = c.clock.Now().Sub(started)

	c.publish(ctx, log, report)
	log.Info("pipeline run finished",
		zap.Int("inserted", report.Inserted),
		zap.Int("existing", report.Existing),
		zap.Duration("duration", report.Duration),
		zap.Bool("memory_abort", report.MemoryAbort),
	)
	return collected, report
}

// processSource fetches one source under its own deadline and classifies the
// result. Errors are captured in the outcome, never returned.
func (c *Coordinator) processSource(ctx context.Context, source ingest.Source) (ingest.FetchOutcome, []ingest.Article) {
	outcome := ingest.FetchOutcome{
		SourceID:   source.ID,
		SourceName: source.Name,
		FetchedAt:  c.clock.Now(),
	}
	if source.URL == "" {
		outcome.Status = ingest.FetchStatusError
		outcome.Err = "source has no URL"
		return outcome, nil
	}

	sctx, cancel := context.WithTimeout(ctx, c.cfg.SourceTimeout)
	defer cancel()

	start := time.Now()
	articles, err := c.fetcher.FetchSource(sctx, source)
	outcome.Duration = time.Since(start)

	switch {
	case err != nil:
		outcome.Status = ingest.FetchStatusError
		outcome.Err = err.Error()
		c.logger.Warn("source fetch failed",
			zap.String("source", source.Name),
			zap.Error(err))
		return outcome, nil
	case len(articles) == 0:
		outcome.Status = ingest.FetchStatusNoArticles
		return outcome, nil
	default:
		outcome.Status = ingest.FetchStatusSuccess
		outcome.ArticleCount = len(articles)
		return outcome, articles
	}
}

// persist inserts each article unless its URL is already present. Duplicate
// URLs, whether detected by the lookup or by the store's unique constraint,
// count as existing.
func (c *Coordinator) persist(ctx context.Context, log *zap.Logger, articles []ingest.Article) (inserted, existing int) {
	for _, a := range articles {
		site := a.URL
		exists, err := c.store.ExistsByURL(ctx, a.URL)
		if err != nil {
			log.Error("existence check failed", zap.String("url", a.URL), zap.Error(err))
			continue
		}
		if exists {
			existing++
			metrics.ObserveArticle(site, "existing")
			continue
		}
		switch err := c.store.Insert(ctx, a); {
		case err == nil:
			inserted++
			metrics.ObserveArticle(site, "inserted")
		case errors.Is(err, ingest.ErrDuplicateURL):
			existing++
			metrics.ObserveArticle(site, "existing")
		default:
			log.Error("insert failed", zap.String("url", a.URL), zap.Error(err))
			metrics.ObserveArticle(site, "failed")
		}
	}
	return inserted, existing
}

// memoryCritical asks the guard, forcing one GC and re-checking before giving
// up, so a single transient spike does not abort a run.
func (c *Coordinator) memoryCritical(log *zap.Logger) bool {
	if c.guard == nil {
		return false
	}
	if c.guard.Tier() < ingest.MemoryCritical {
		return false
	}
	log.Warn("memory critical, forcing GC before re-check")
	c.guard.ForceGC()
	if c.guard.Tier() < ingest.MemoryCritical {
		return false
	}
	log.Error("memory still critical after GC, aborting run")
	return true
}

// abortedOutcomes marks every source not yet started when the run aborts.
// Their stored health is left untouched: no fetch was attempted.
func (c *Coordinator) abortedOutcomes(remaining []ingest.Source) []ingest.FetchOutcome {
	outcomes := make([]ingest.FetchOutcome, 0, len(remaining))
	for _, s := range remaining {
		if !s.Active {
			continue
		}
		outcomes = append(outcomes, ingest.FetchOutcome{
			SourceID:   s.ID,
			SourceName: s.Name,
			Status:     ingest.FetchStatusError,
			Err:        ingest.ErrMemoryCritical.Error(),
			FetchedAt:  c.clock.Now(),
		})
	}
	return outcomes
}

func (c *Coordinator) recordHealth(ctx context.Context, log *zap.Logger, sourceID string, outcome ingest.FetchOutcome) {
	if err := c.store.UpdateSourceHealth(ctx, sourceID, outcome); err != nil {
		log.Error("recording source health failed",
			zap.String("source_id", sourceID),
			zap.Error(err))
	}
}

func (c *Coordinator) publish(ctx context.Context, log *zap.Logger, report ingest.RunReport) {
	if c.publisher == nil {
		return
	}
	id, err := c.publisher.Publish(ctx, c.cfg.Topic, report)
	if err != nil {
		log.Error("publishing run report failed", zap.Error(err))
		return
	}
	log.Debug("run report published", zap.String("message_id", id))
}

func (c *Coordinator) runID() string {
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("run id generation failed, using timestamp", zap.Error(err))
		return fmt.Sprintf("run-%d", c.clock.Now().UnixNano())
	}
	return id
}
