// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsblend/ingest/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for article rows.
type StoreConfig struct {
	DSN             string
	ArticleTable    string
	SourceTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type poolIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store writes article and source-health rows into Postgres.
type Store struct {
	pool         poolIface
	articleTable string
	sourceTable  string
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	articleTable, sourceTable, err := resolveTables(cfg.ArticleTable, cfg.SourceTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{
		pool:         pool,
		articleTable: articleTable,
		sourceTable:  sourceTable,
	}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for testing).
func NewStoreWithPool(pool poolIface, articleTable, sourceTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	at, st, err := resolveTables(articleTable, sourceTable)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, articleTable: at, sourceTable: st}, nil
}

func resolveTables(articleTable, sourceTable string) (string, string, error) {
	if articleTable == "" {
		articleTable = "articles"
	}
	if sourceTable == "" {
		sourceTable = "sources"
	}
	if !validTableName.MatchString(articleTable) {
		return "", "", fmt.Errorf("invalid table name %q", articleTable)
	}
	if !validTableName.MatchString(sourceTable) {
		return "", "", fmt.Errorf("invalid table name %q", sourceTable)
	}
	return articleTable, sourceTable, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ExistsByURL reports whether an article row with this URL exists.
func (s *Store) ExistsByURL(ctx context.Context, url string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("article store is not configured")
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE url = $1)`, s.articleTable)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check article url: %w", err)
	}
	return exists, nil
}

// Insert adds one article row. The URL uniqueness constraint is the
// authoritative dedup guard: conflicting inserts return ingest.ErrDuplicateURL
// without modifying the existing row.
func (s *Store) Insert(ctx context.Context, article ingest.Article) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("article store is not configured")
	}
	if article.URL == "" {
		return fmt.Errorf("article url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	title,
	url,
	published_at,
	source_id,
	source_name,
	topic,
	summary
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
) ON CONFLICT (url) DO NOTHING`, s.articleTable)

	tag, err := s.pool.Exec(ctx, query,
		article.Title,
		article.URL,
		article.PublishedAt,
		article.SourceID,
		article.SourceName,
		article.Topic,
		article.Summary,
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrDuplicateURL
	}
	return nil
}

// UpdateSourceHealth writes the latest fetch outcome onto the source row.
func (s *Store) UpdateSourceHealth(ctx context.Context, sourceID string, outcome ingest.FetchOutcome) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("article store is not configured")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	last_fetched_at = $2,
	last_fetch_status = $3,
	last_fetch_article_count = $4,
	last_fetch_error = $5
WHERE id = $1`, s.sourceTable)

	tag, err := s.pool.Exec(ctx, query,
		sourceID,
		outcome.FetchedAt,
		string(outcome.Status),
		outcome.ArticleCount,
		outcome.Err,
	)
	if err != nil {
		return fmt.Errorf("update source health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s not found", sourceID)
	}
	return nil
}
