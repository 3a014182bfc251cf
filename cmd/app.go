package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/cache"
	"github.com/newsblend/ingest/internal/clock/system"
	"github.com/newsblend/ingest/internal/config"
	"github.com/newsblend/ingest/internal/extract"
	"github.com/newsblend/ingest/internal/feed"
	uuidgen "github.com/newsblend/ingest/internal/id/uuid"
	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/logging"
	"github.com/newsblend/ingest/internal/memguard"
	"github.com/newsblend/ingest/internal/metrics"
	"github.com/newsblend/ingest/internal/parallel"
	"github.com/newsblend/ingest/internal/pipeline"
	pubmem "github.com/newsblend/ingest/internal/publisher/memory"
	pubgcp "github.com/newsblend/ingest/internal/publisher/pubsub"
	storemem "github.com/newsblend/ingest/internal/storage/memory"
	storepg "github.com/newsblend/ingest/internal/storage/postgres"
	"github.com/newsblend/ingest/internal/summarize"
)

// app holds everything a command needs, wired from configuration.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	coordinator *pipeline.Coordinator
	sources     []ingest.Source
	closers     []func() error
}

// buildApp loads configuration and assembles the pipeline. The returned app
// owns every resource it opened; Close releases them in reverse order.
func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &app{cfg: cfg, logger: logger, sources: toSources(cfg.Sources)}
	clock := system.New()

	store, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	retriever := feed.New(feed.Config{
		MaxBytes:  cfg.Feed.MaxBytes,
		Timeout:   cfg.FeedTimeout(),
		UserAgent: cfg.Feed.UserAgent,
	}, clock, logger)

	extractor := extract.New(extract.Config{
		UserAgent:     cfg.Feed.UserAgent,
		MaxBytes:      cfg.Extract.MaxBytes,
		Timeout:       time.Duration(cfg.Extract.TimeoutSeconds) * time.Second,
		MinLineLength: cfg.Extract.MinLineLength,
	}, logger)

	summarizer := a.buildSummarizer()

	guard := memguard.New(memguard.Config{
		CeilingBytes:     uint64(cfg.Memory.CeilingMB) << 20,
		WarningFraction:  cfg.Memory.WarningFraction,
		DangerFraction:   cfg.Memory.DangerFraction,
		CriticalFraction: cfg.Memory.CriticalFraction,
	}, logger)

	opts := []pipeline.Option{pipeline.WithMemoryGuard(guard)}
	if publisher != nil {
		opts = append(opts, pipeline.WithPublisher(publisher))
	}

	var fetcher ingest.SourceFetcher
	if cfg.Pipeline.Mode == config.ModeBatch {
		// Batch mode defers extraction and summarization to one parallel
		// pass after the global cap.
		fetcher = pipeline.NewFetcher(pipeline.FetcherConfig{
			PerSourceCap: cfg.Pipeline.PerSourceCap,
			TargetWords:  cfg.Pipeline.TargetWords,
		}, retriever, nil, nil, logger)
		opts = append(opts, pipeline.WithProcessor(parallel.New(parallel.Config{
			Workers:        cfg.Parallel.Workers,
			MaxBatch:       cfg.Parallel.MaxBatch,
			ArticleTimeout: time.Duration(cfg.Parallel.ArticleTimeoutSeconds) * time.Second,
			BatchBuffer:    time.Duration(cfg.Parallel.BatchBufferSeconds) * time.Second,
			TargetWords:    cfg.Pipeline.TargetWords,
		}, extractor, summarizer, logger)))
	} else {
		inline := pipeline.NewFetcher(pipeline.FetcherConfig{
			PerSourceCap: cfg.Pipeline.PerSourceCap,
			TargetWords:  cfg.Pipeline.TargetWords,
		}, retriever, extractor, summarizer, logger)
		fetcher = pipeline.NewCachedFetcher(inline, cache.New(cache.Config{
			TTL:                  time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			MaxEntries:           cfg.Cache.MaxEntries,
			MaxArticlesPerSource: cfg.Pipeline.PerSourceCap,
		}, clock), logger)
	}

	a.coordinator = pipeline.New(pipeline.Config{
		GlobalMax:     cfg.GlobalMax(),
		SourceTimeout: cfg.SourceTimeout(),
		Topic:         cfg.PubSub.TopicName,
	}, fetcher, store, clock, uuidgen.NewGenerator(), logger, opts...)

	return a, nil
}

func (a *app) buildStore(ctx context.Context) (ingest.ArticleStore, error) {
	switch a.cfg.DB.Provider {
	case "postgres":
		store, err := storepg.NewStore(ctx, storepg.StoreConfig{
			DSN:          a.cfg.DB.DSN,
			ArticleTable: a.cfg.DB.ArticleTable,
			SourceTable:  a.cfg.DB.SourceTable,
			MaxConns:     a.cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		return store, nil
	case "memory":
		return storemem.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown db provider %q", a.cfg.DB.Provider)
	}
}

func (a *app) buildPublisher(ctx context.Context) (ingest.Publisher, error) {
	switch a.cfg.PubSub.Provider {
	case "pubsub":
		pub, err := pubgcp.New(ctx, a.cfg.PubSub.ProjectID, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		return pub, nil
	case "memory":
		return pubmem.New(), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown pubsub provider %q", a.cfg.PubSub.Provider)
	}
}

// buildSummarizer returns the adapter backed by OpenAI when summarization is
// enabled and a key is present; otherwise the adapter runs in truncation-only
// mode with a nil backend.
func (a *app) buildSummarizer() ingest.Summarizer {
	var backend summarize.Backend
	if a.cfg.Pipeline.Summarize && a.cfg.Summarize.APIKey != "" {
		backend = summarize.NewOpenAIBackend(summarize.OpenAIConfig{
			APIKey:      a.cfg.Summarize.APIKey,
			Model:       a.cfg.Summarize.Model,
			Temperature: a.cfg.Summarize.Temperature,
			MaxTokens:   a.cfg.Summarize.MaxTokens,
		})
	} else if a.cfg.Pipeline.Summarize {
		a.logger.Warn("summarization enabled but no API key set, falling back to truncation")
	}
	return summarize.New(backend, summarize.Config{
		Timeout: time.Duration(a.cfg.Summarize.TimeoutSeconds) * time.Second,
	}, a.logger)
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func toSources(configured []config.SourceConfig) []ingest.Source {
	sources := make([]ingest.Source, 0, len(configured))
	for _, s := range configured {
		format := ingest.SourceFormat(s.Format)
		if format == "" {
			format = ingest.FormatRSS
		}
		sources = append(sources, ingest.Source{
			ID:     s.ID,
			Name:   s.Name,
			URL:    s.URL,
			Active: s.Active,
			Format: format,
			Topic:  s.Topic,
		})
	}
	return sources
}
