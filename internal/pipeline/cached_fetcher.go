package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/cache"
	"github.com/newsblend/ingest/internal/ingest"
)

// CachedFetcher wraps a SourceFetcher with the TTL fetch cache so repeated
// runs inside the freshness window skip the network entirely.
type CachedFetcher struct {
	inner  ingest.SourceFetcher
	cache  *cache.Cache
	logger *zap.Logger
}

// NewCachedFetcher decorates inner with c.
func NewCachedFetcher(inner ingest.SourceFetcher, c *cache.Cache, logger *zap.Logger) *CachedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFetcher{inner: inner, cache: c, logger: logger}
}

// FetchSource serves from cache when possible. Failed fetches are never
// cached; only successful article lists enter the cache.
func (f *CachedFetcher) FetchSource(ctx context.Context, source ingest.Source) ([]ingest.Article, error) {
	if articles, ok := f.cache.Get(source); ok {
		f.logger.Debug("cache hit", zap.String("source", source.Name))
		return articles, nil
	}
	articles, err := f.inner.FetchSource(ctx, source)
	if err != nil {
		return nil, err
	}
	f.cache.Put(source, articles)
	return articles, nil
}
