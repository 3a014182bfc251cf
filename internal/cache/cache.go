// Package cache provides the TTL-bounded fetch cache that absorbs repeated
// per-source fetches within a freshness window.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/metrics"
)

// Config controls cache limits.
type Config struct {
	TTL                  time.Duration
	MaxEntries           int
	MaxArticlesPerSource int
}

type entry struct {
	articles  []ingest.Article
	expiresAt time.Time
}

// Cache stores capped per-source article lists keyed by source identity plus
// its freshness marker, so editing a source invalidates its entry implicitly.
// Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	cfg     Config
	clock   ingest.Clock
}

// New builds a Cache.
func New(cfg Config, clock ingest.Clock) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	if cfg.MaxArticlesPerSource <= 0 {
		cfg.MaxArticlesPerSource = 3
	}
	return &Cache{
		entries: make(map[string]entry),
		cfg:     cfg,
		clock:   clock,
	}
}

// Key derives the cache key for a source.
func Key(source ingest.Source) string {
	return fmt.Sprintf("%s|%s|%d", source.ID, source.URL, source.UpdatedAt.Unix())
}

// Get returns the cached article list for source. Expired entries are treated
// as absent and removed.
func (c *Cache) Get(source ingest.Source) ([]ingest.Article, bool) {
	key := Key(source)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		metrics.ObserveCacheOp("miss")
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if cur, still := c.entries[key]; still && !c.clock.Now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		metrics.ObserveCacheOp("expired")
		return nil, false
	}

	metrics.ObserveCacheOp("hit")
	out := make([]ingest.Article, len(e.articles))
	copy(out, e.articles)
	return out, true
}

// Put stores at most MaxArticlesPerSource articles for source, silently
// truncating any excess.
func (c *Cache) Put(source ingest.Source, articles []ingest.Article) {
	if len(articles) > c.cfg.MaxArticlesPerSource {
		articles = articles[:c.cfg.MaxArticlesPerSource]
	}
	stored := make([]ingest.Article, len(articles))
	copy(stored, articles)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[Key(source)] = entry{
		articles:  stored,
		expiresAt: c.clock.Now().Add(c.cfg.TTL),
	}
	if len(c.entries) > c.cfg.MaxEntries {
		c.evictStalest()
	}
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictStalest drops the half of the entries expiring soonest, keeping the
// freshest remainder. Approximate LRU by expiry, not strict LRU.
// Caller holds the write lock.
func (c *Cache) evictStalest() {
	type keyed struct {
		key       string
		expiresAt time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, keyed{key: k, expiresAt: e.expiresAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].expiresAt.Before(all[j].expiresAt)
	})
	for _, victim := range all[:len(all)/2] {
		delete(c.entries, victim.key)
	}
}
