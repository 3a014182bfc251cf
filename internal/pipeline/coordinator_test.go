package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsblend/ingest/internal/cache"
	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/parallel"
	pubmem "github.com/newsblend/ingest/internal/publisher/memory"
	storemem "github.com/newsblend/ingest/internal/storage/memory"
)

type routingFetcher struct {
	articles map[string][]ingest.Article
	errs     map[string]error
}

func (f *routingFetcher) FetchSource(_ context.Context, s ingest.Source) ([]ingest.Article, error) {
	if err := f.errs[s.ID]; err != nil {
		return nil, err
	}
	return f.articles[s.ID], nil
}

type stubGuard struct {
	tier    ingest.MemoryTier
	gcCalls int
}

func (g *stubGuard) Tier() ingest.MemoryTier { return g.tier }
func (g *stubGuard) ForceGC()                { g.gcCalls++ }

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-1", nil }

func activeSource(id string) ingest.Source {
	return ingest.Source{ID: id, Name: "source-" + id, URL: "http://" + id + "/feed", Active: true}
}

func taggedArticle(sourceID, slug string) ingest.Article {
	return ingest.Article{
		Title:    slug,
		URL:      "http://" + sourceID + "/" + slug,
		SourceID: sourceID,
		Summary:  "text " + slug,
	}
}

func newTestCoordinator(cfg Config, fetcher ingest.SourceFetcher, store ingest.ArticleStore, opts ...Option) *Coordinator {
	return New(cfg, fetcher, store, newFakeClock(), staticIDs{}, nil, opts...)
}

func TestRun_InsertsArticlesAndRecordsHealth(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a"), taggedArticle("s1", "b")},
	}}
	store := storemem.NewStore()
	co := newTestCoordinator(Config{GlobalMax: 10}, fetcher, store)

	articles, report := co.Run(context.Background(), []ingest.Source{activeSource("s1")})

	require.Len(t, articles, 2)
	require.Equal(t, 2, report.Inserted)
	require.Zero(t, report.Existing)
	require.Equal(t, "run-1", report.RunID)
	require.Len(t, store.Articles(), 2)

	require.Len(t, report.Outcomes, 1)
	require.Equal(t, ingest.FetchStatusSuccess, report.Outcomes[0].Status)
	require.Equal(t, 2, report.Outcomes[0].ArticleCount)

	health, ok := store.Health("s1")
	require.True(t, ok)
	require.Equal(t, ingest.FetchStatusSuccess, health.Status)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a"), taggedArticle("s1", "b")},
	}}
	store := storemem.NewStore()
	co := newTestCoordinator(Config{GlobalMax: 10}, fetcher, store)
	sources := []ingest.Source{activeSource("s1")}

	_, first := co.Run(context.Background(), sources)
	require.Equal(t, 2, first.Inserted)

	_, second := co.Run(context.Background(), sources)
	require.Zero(t, second.Inserted)
	require.Equal(t, 2, second.Existing)
	require.Len(t, store.Articles(), 2)
}

func TestRun_FailingSourceDoesNotAbortOthers(t *testing.T) {
	fetcher := &routingFetcher{
		articles: map[string][]ingest.Article{
			"s1": {taggedArticle("s1", "a")},
			"s3": {taggedArticle("s3", "c")},
		},
		errs: map[string]error{"s2": errors.New("connection refused")},
	}
	store := storemem.NewStore()
	co := newTestCoordinator(Config{GlobalMax: 10}, fetcher, store)

	articles, report := co.Run(context.Background(), []ingest.Source{
		activeSource("s1"), activeSource("s2"), activeSource("s3"),
	})

	require.Len(t, articles, 2)
	require.Len(t, report.Outcomes, 3)
	require.Equal(t, ingest.FetchStatusSuccess, report.Outcomes[0].Status)
	require.Equal(t, ingest.FetchStatusError, report.Outcomes[1].Status)
	require.Contains(t, report.Outcomes[1].Err, "connection refused")
	require.Equal(t, ingest.FetchStatusSuccess, report.Outcomes[2].Status)

	for _, id := range []string{"s1", "s2", "s3"} {
		_, ok := store.Health(id)
		require.True(t, ok, "health missing for %s", id)
	}
}

func TestRun_GlobalCapAppliedAfterConcatenation(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a"), taggedArticle("s1", "b"), taggedArticle("s1", "c")},
		"s2": {taggedArticle("s2", "d"), taggedArticle("s2", "e"), taggedArticle("s2", "f")},
	}}
	store := storemem.NewStore()
	co := newTestCoordinator(Config{GlobalMax: 3}, fetcher, store)

	articles, report := co.Run(context.Background(), []ingest.Source{
		activeSource("s1"), activeSource("s2"),
	})

	require.Len(t, articles, 3)
	require.Equal(t, 3, report.Inserted)
	require.Equal(t, "s1", articles[0].SourceID)
}

func TestRun_InactiveSourceSkipped(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a")},
	}}
	store := storemem.NewStore()
	co := newTestCoordinator(Config{GlobalMax: 10}, fetcher, store)

	inactive := activeSource("s1")
	inactive.Active = false
	_, report := co.Run(context.Background(), []ingest.Source{inactive})

	require.Empty(t, report.Outcomes)
	_, ok := store.Health("s1")
	require.False(t, ok)
}

func TestRun_ActiveSourceWithoutURLRecordedAsError(t *testing.T) {
	store := storemem.NewStore()
	co := newTestCoordinator(Config{GlobalMax: 10}, &routingFetcher{}, store)

	src := activeSource("s1")
	src.URL = ""
	_, report := co.Run(context.Background(), []ingest.Source{src})

	require.Len(t, report.Outcomes, 1)
	require.Equal(t, ingest.FetchStatusError, report.Outcomes[0].Status)
	require.Contains(t, report.Outcomes[0].Err, "no URL")

	health, ok := store.Health("s1")
	require.True(t, ok)
	require.Equal(t, ingest.FetchStatusError, health.Status)
}

func TestRun_EmptyFeedRecordedAsNoArticles(t *testing.T) {
	store := storemem.NewStore()
	co := newTestCoordinator(Config{GlobalMax: 10}, &routingFetcher{}, store)

	_, report := co.Run(context.Background(), []ingest.Source{activeSource("s1")})

	require.Len(t, report.Outcomes, 1)
	require.Equal(t, ingest.FetchStatusNoArticles, report.Outcomes[0].Status)
}

func TestRun_CriticalMemoryAbortsBeforeFetching(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a")},
	}}
	store := storemem.NewStore()
	guard := &stubGuard{tier: ingest.MemoryCritical}
	co := newTestCoordinator(Config{GlobalMax: 10}, fetcher, store, WithMemoryGuard(guard))

	articles, report := co.Run(context.Background(), []ingest.Source{
		activeSource("s1"), activeSource("s2"),
	})

	require.Empty(t, articles)
	require.True(t, report.MemoryAbort)
	require.Equal(t, 1, guard.gcCalls)
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		require.Equal(t, ingest.FetchStatusError, o.Status)
		require.Equal(t, ingest.ErrMemoryCritical.Error(), o.Err)
	}
	require.Empty(t, store.Articles())
	_, ok := store.Health("s1")
	require.False(t, ok)
}

func TestRun_WarningTierDoesNotAbort(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a")},
	}}
	store := storemem.NewStore()
	guard := &stubGuard{tier: ingest.MemoryWarning}
	co := newTestCoordinator(Config{GlobalMax: 10}, fetcher, store, WithMemoryGuard(guard))

	_, report := co.Run(context.Background(), []ingest.Source{activeSource("s1")})

	require.False(t, report.MemoryAbort)
	require.Equal(t, 1, report.Inserted)
	require.Zero(t, guard.gcCalls)
}

func TestRun_PublishesRunReport(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a")},
	}}
	pub := pubmem.New()
	co := newTestCoordinator(Config{GlobalMax: 10, Topic: "runs"},
		fetcher, storemem.NewStore(), WithPublisher(pub))

	_, report := co.Run(context.Background(), []ingest.Source{activeSource("s1")})

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)
	published, ok := msgs[0].Payload.(ingest.RunReport)
	require.True(t, ok)
	require.Equal(t, report.RunID, published.RunID)
	require.Equal(t, 1, published.Inserted)
}

func TestRun_BatchModeSummarizesAfterCap(t *testing.T) {
	fetcher := &routingFetcher{articles: map[string][]ingest.Article{
		"s1": {taggedArticle("s1", "a"), taggedArticle("s1", "b")},
	}}
	store := storemem.NewStore()
	processor := parallel.New(parallel.Config{Workers: 2, ArticleTimeout: time.Second},
		nil, &fakeSummarizer{prefix: "sum: "}, nil)
	co := newTestCoordinator(Config{GlobalMax: 10}, fetcher, store, WithProcessor(processor))

	articles, report := co.Run(context.Background(), []ingest.Source{activeSource("s1")})

	require.Len(t, articles, 2)
	require.Equal(t, 2, report.Inserted)
	for _, a := range store.Articles() {
		require.Contains(t, a.Summary, "sum: text ")
	}
}

func TestRun_EndToEndCachedMode(t *testing.T) {
	feed := &fakeFeed{entries: map[string][]ingest.RawEntry{
		"http://s1/feed": {
			entry("jan1", "http://s1/jan1", 1),
			entry("jan2", "http://s1/jan2", 2),
			entry("jan3", "http://s1/jan3", 3),
			entry("jan4", "http://s1/jan4", 4),
			entry("jan5", "http://s1/jan5", 5),
		},
	}}
	clock := newFakeClock()
	fetcher := NewCachedFetcher(
		NewFetcher(FetcherConfig{PerSourceCap: 3}, feed, nil, nil, nil),
		cache.New(cache.Config{TTL: 300 * time.Second}, clock),
		nil,
	)
	store := storemem.NewStore()
	co := New(Config{GlobalMax: 3}, fetcher, store, clock, staticIDs{}, nil)

	source := activeSource("s1")
	source.URL = "http://s1/feed"

	articles, report := co.Run(context.Background(), []ingest.Source{source})
	require.Len(t, articles, 3)
	require.Equal(t, 3, report.Inserted)
	require.Equal(t, []string{"jan5", "jan4", "jan3"},
		[]string{articles[0].Title, articles[1].Title, articles[2].Title})
	require.Equal(t, "body of jan5", articles[0].Summary)

	// Second run inside the TTL window: served from cache, nothing new stored.
	_, second := co.Run(context.Background(), []ingest.Source{source})
	require.Zero(t, second.Inserted)
	require.Equal(t, 3, second.Existing)
	require.Equal(t, 1, feed.calls)
	require.Len(t, store.Articles(), 3)
}
