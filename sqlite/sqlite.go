// Package sqlite implements the store engine on the pure-Go SQLite driver.
// The engine executes one statement at a time over a single connection,
// registers the vector distance function, and normalizes rows to the stable
// shape the worker protocol promises regardless of transport.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/webquery/worker"
)

// Ensure Engine implements the worker engine contract.
var _ worker.Engine = (*Engine)(nil)

// Engine is a single-connection SQLite database. It is driven by exactly
// one worker at a time and is not safe for concurrent use.
type Engine struct {
	db   *sql.DB
	path string
}

// NewEngine creates a new Engine for the database at the given path.
// Use ":memory:" for an in-memory database.
func NewEngine(path string) *Engine {
	return &Engine{path: path}
}

// Open opens the database connection, registers the vector functions, and
// creates the schema if needed. It may be called again after a crash.
func (e *Engine) Open(ctx context.Context) error {
	registerVectorFunctions()

	db, err := sql.Open("sqlite", e.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit to one connection.
	// A single connection also keeps pragmas applied to every statement.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set busy timeout to wait 5 seconds before failing on lock contention.
	// This prevents immediate "database is locked" errors.
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable WAL mode for file-based databases for better write performance.
	// Note: WAL mode is not supported for in-memory databases.
	if e.path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Enable foreign key constraints
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	e.db = db

	// Create schema
	if err := e.createSchema(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (e *Engine) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// Exec executes a statement that returns no rows.
func (e *Engine) Exec(ctx context.Context, statement string, params []any) (worker.Result, error) {
	res, err := e.db.ExecContext(ctx, statement, bindParams(params)...)
	if err != nil {
		return worker.Result{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return worker.Result{}, err
	}
	return worker.Result{RowsAffected: n}, nil
}

// Query executes a statement and returns all result rows. Column keys are
// lowercased and values reduced to int64, float64, string, []byte, or nil.
func (e *Engine) Query(ctx context.Context, statement string, params []any) ([]worker.Row, error) {
	rows, err := e.db.QueryContext(ctx, statement, bindParams(params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(cols))
	for i, col := range cols {
		keys[i] = strings.ToLower(col)
	}

	var out []worker.Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(worker.Row, len(cols))
		for i, key := range keys {
			row[key] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// bindParams converts parameter values the driver does not accept directly.
func bindParams(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case time.Time:
			out[i] = v.UTC().Format(time.RFC3339Nano)
		default:
			out[i] = p
		}
	}
	return out
}

// normalizeValue reduces a scanned value to the worker row value set.
func normalizeValue(v any) any {
	switch v := v.(type) {
	case nil, int64, float64, string:
		return v
	case []byte:
		// The driver may reuse the buffer between rows.
		b := make([]byte, len(v))
		copy(b, v)
		return b
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// createSchema creates the database tables if they don't exist. Chunks
// reference documents by URL; the cascade on document deletion is handled
// transactionally by the store layer.
func (e *Engine) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS documents (
			url TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			last_crawled TEXT NOT NULL,
			content_hash TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			section_path TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_url ON chunks(url);
	`

	_, err := e.db.ExecContext(ctx, schema)
	return err
}
