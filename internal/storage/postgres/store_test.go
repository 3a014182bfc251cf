package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/newsblend/ingest/internal/ingest"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock, "articles", "sources")
	require.NoError(t, err)
	return mock, store
}

func testArticle() ingest.Article {
	return ingest.Article{
		Title:       "A headline",
		URL:         "https://example.com/story",
		PublishedAt: time.Unix(1700000000, 0).UTC(),
		SourceID:    "src-1",
		SourceName:  "Example",
		Topic:       "tech",
		Summary:     "short summary",
	}
}

func TestInsertAddsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	a := testArticle()

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(a.Title, a.URL, a.PublishedAt, a.SourceID, a.SourceName, a.Topic, a.Summary).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConflictReturnsDuplicate(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	a := testArticle()

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(a.Title, a.URL, a.PublishedAt, a.SourceID, a.SourceName, a.Topic, a.Summary).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.Insert(context.Background(), a)
	require.ErrorIs(t, err, ingest.ErrDuplicateURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRequiresURL(t *testing.T) {
	t.Parallel()

	_, store := newMockStore(t)
	err := store.Insert(context.Background(), ingest.Article{Title: "no url"})
	require.Error(t, err)
}

func TestExistsByURL(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://example.com/story").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.ExistsByURL(context.Background(), "https://example.com/story")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSourceHealth(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	outcome := ingest.FetchOutcome{
		SourceID:     "src-1",
		Status:       ingest.FetchStatusSuccess,
		ArticleCount: 3,
		FetchedAt:    time.Unix(1700000100, 0).UTC(),
	}

	mock.ExpectExec("UPDATE sources SET").
		WithArgs("src-1", outcome.FetchedAt, "success", 3, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateSourceHealth(context.Background(), "src-1", outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSourceHealthUnknownSource(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("UPDATE sources SET").
		WithArgs("ghost", pgxmock.AnyArg(), "error", 0, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateSourceHealth(context.Background(), "ghost", ingest.FetchOutcome{
		SourceID: "ghost",
		Status:   ingest.FetchStatusError,
		Err:      "boom",
	})
	require.Error(t, err)
}

func TestNewStoreWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewStoreWithPool(mock, "articles; DROP TABLE articles", "sources")
	require.Error(t, err)
}
