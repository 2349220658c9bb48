// Package sqlite stores search results in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// SQLite driver without cgo.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/hash/sha256"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS search_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	result_key TEXT NOT NULL,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	fields TEXT,
	inserted_at TIMESTAMP NOT NULL,
	UNIQUE (query, result_key)
);
CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_results(query);
`

// Store implements crawler.ResultStore on SQLite. A single connection avoids lock contention.
type Store struct {
	db    *sql.DB
	query string
}

// New opens (or creates) the database at path.
func New(ctx context.Context, path, query string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &Store{db: db, query: query}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Existing returns the rows already stored for the query in insertion order.
func (s *Store) Existing(ctx context.Context) ([]crawler.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, link, fields FROM search_results WHERE query = ? ORDER BY id`, s.query)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []crawler.SearchResult
	for rows.Next() {
		var (
			r      crawler.SearchResult
			fields sql.NullString
		)
		if err := rows.Scan(&r.Title, &r.Link, &fields); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &r.Fields); err != nil {
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

// Append inserts results in one transaction. Rows already present are ignored.
func (s *Store) Append(ctx context.Context, results []crawler.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO search_results (query, result_key, title, link, fields, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, r := range results {
		var fields sql.NullString
		if len(r.Fields) > 0 {
			data, err := json.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("marshal fields: %w", err)
			}
			fields = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, s.query, sha256.ResultKey(r), r.Title, r.Link, fields, now); err != nil {
			return fmt.Errorf("insert result %s: %w", r.Link, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}
