package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsblend/ingest/internal/ingest"
)

func TestStore_InsertAndExists(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	exists, err := s.ExistsByURL(ctx, "https://ex.com/a")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, s.Insert(ctx, ingest.Article{Title: "a", URL: "https://ex.com/a"}))

	exists, err = s.ExistsByURL(ctx, "https://ex.com/a")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestStore_DuplicateInsertRejected(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	article := ingest.Article{Title: "a", URL: "https://ex.com/a"}

	require.NoError(t, s.Insert(ctx, article))
	err := s.Insert(ctx, article)
	require.ErrorIs(t, err, ingest.ErrDuplicateURL)
	require.Len(t, s.Articles(), 1)
}

func TestStore_UpdateSourceHealth(t *testing.T) {
	t.Parallel()

	s := NewStore()
	outcome := ingest.FetchOutcome{
		SourceID:  "s1",
		Status:    ingest.FetchStatusError,
		Err:       "connection refused",
		FetchedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpdateSourceHealth(context.Background(), "s1", outcome))

	got, ok := s.Health("s1")
	require.True(t, ok)
	require.Equal(t, outcome, got)
}

func TestStore_ConcurrentInsertsKeepOneRowPerURL(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Half the goroutines collide on the same URL.
			url := fmt.Sprintf("https://ex.com/%d", n%8)
			_ = s.Insert(context.Background(), ingest.Article{Title: "t", URL: url})
		}(i)
	}
	wg.Wait()
	require.Len(t, s.Articles(), 8)
}
