// Package postgres stores crawled articles in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

const defaultTable = "news_articles"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for article rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// ArticleStore upserts article records keyed by (website, url).
type ArticleStore struct {
	pool  pool
	table string
}

// NewArticleStore connects to Postgres using cfg.
func NewArticleStore(ctx context.Context, cfg Config) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewArticleStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool.
func NewArticleStoreWithPool(p pool, table string) (*ArticleStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleStore{pool: p, table: table}, nil
}

// Close releases the pool.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the article table when it does not exist.
func (s *ArticleStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	website TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	first_upload_time TEXT,
	last_upload_time TEXT,
	author TEXT,
	content TEXT NOT NULL,
	category TEXT NOT NULL,
	note TEXT,
	run_id TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (website, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// UpsertArticles writes records in one transaction. A record already stored
// for the same site and URL is replaced.
func (s *ArticleStore) UpsertArticles(ctx context.Context, runID string, records []crawler.Article) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	website, url, title, first_upload_time, last_upload_time,
	author, content, category, note, run_id, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
ON CONFLICT (website, url) DO UPDATE SET
	title = EXCLUDED.title,
	first_upload_time = EXCLUDED.first_upload_time,
	last_upload_time = EXCLUDED.last_upload_time,
	author = EXCLUDED.author,
	content = EXCLUDED.content,
	category = EXCLUDED.category,
	note = EXCLUDED.note,
	run_id = EXCLUDED.run_id,
	updated_at = now()`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, rec := range records {
		_, err := tx.Exec(ctx, query,
			string(rec.Website),
			rec.URL,
			rec.Title,
			rec.FirstUploadTime,
			rec.LastUploadTime,
			rec.Author,
			rec.Content,
			rec.Category,
			rec.Note,
			runID,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert %s: %w", rec.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
