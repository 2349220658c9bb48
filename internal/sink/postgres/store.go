// Package postgres stores search results in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/hash/sha256"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store implements crawler.ResultStore. Rows are keyed by (query, result_key) so that
// appending the same result twice is a no-op.
type Store struct {
	pool  pool
	table string
	query string
}

// New connects to Postgres and creates the results table when missing.
func New(ctx context.Context, cfg Config, query string) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("output.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, query)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table, query string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "search_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table, query: query}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the results table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	query TEXT NOT NULL,
	result_key TEXT NOT NULL,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	fields JSONB,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (query, result_key)
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Existing returns the rows already stored for the query.
func (s *Store) Existing(ctx context.Context) ([]crawler.SearchResult, error) {
	sql := fmt.Sprintf(`SELECT title, link, fields FROM %s WHERE query = $1 ORDER BY inserted_at`, s.table)
	rows, err := s.pool.Query(ctx, sql, s.query)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer rows.Close()

	var out []crawler.SearchResult
	for rows.Next() {
		var (
			r      crawler.SearchResult
			fields []byte
		)
		if err := rows.Scan(&r.Title, &r.Link, &fields); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &r.Fields); err != nil {
				return nil, fmt.Errorf("decode result fields: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// Append inserts results, skipping rows that already exist.
func (s *Store) Append(ctx context.Context, results []crawler.SearchResult) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (query, result_key, title, link, fields)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (query, result_key) DO NOTHING`, s.table)
	for _, r := range results {
		fields, err := marshalFields(r.Fields)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, sql, s.query, sha256.ResultKey(r), r.Title, r.Link, fields); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return nil
}

func marshalFields(fields map[string]string) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return data, nil
}
