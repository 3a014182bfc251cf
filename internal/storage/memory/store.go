// Package memory provides an in-memory article store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/newsblend/ingest/internal/ingest"
)

// Store implements ingest.ArticleStore with maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	articles map[string]ingest.Article
	health   map[string]ingest.FetchOutcome
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		articles: make(map[string]ingest.Article),
		health:   make(map[string]ingest.FetchOutcome),
	}
}

// ExistsByURL reports whether an article with this URL was already inserted.
func (s *Store) ExistsByURL(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.articles[url]
	return ok, nil
}

// Insert stores the article, enforcing URL uniqueness.
func (s *Store) Insert(_ context.Context, article ingest.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[article.URL]; ok {
		return ingest.ErrDuplicateURL
	}
	s.articles[article.URL] = article
	return nil
}

// UpdateSourceHealth records the latest outcome for a source.
func (s *Store) UpdateSourceHealth(_ context.Context, sourceID string, outcome ingest.FetchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[sourceID] = outcome
	return nil
}

// Articles returns all inserted articles (test helper).
func (s *Store) Articles() []ingest.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a)
	}
	return out
}

// Health returns the last recorded outcome for a source (test helper).
func (s *Store) Health(sourceID string) (ingest.FetchOutcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outcome, ok := s.health[sourceID]
	return outcome, ok
}
