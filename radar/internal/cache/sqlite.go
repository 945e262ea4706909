package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/starradar/starradar/pkg/types"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS star_cache (
	repo_id     TEXT PRIMARY KEY,
	stars       INTEGER NOT NULL,
	observed_at TEXT NOT NULL
)`

const sqliteUpsert = `INSERT INTO star_cache (repo_id, stars, observed_at)
VALUES (?, ?, ?)
ON CONFLICT(repo_id) DO UPDATE SET stars = excluded.stars, observed_at = excluded.observed_at`

// SQLiteBackend stores one row per repository.
type SQLiteBackend struct {
	db *sql.DB

	// corrupt is reported by the first Load after OpenSQLite had to
	// replace an unreadable database file.
	corrupt error
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// star_cache table exists. A file that is not a readable SQLite database is
// removed and recreated empty; the first Load then returns a *CorruptError.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir: %w", err)
		}
	}

	db, err := openSQLiteDB(ctx, path)
	if err == nil {
		return &SQLiteBackend{db: db}, nil
	}
	if !isCorrupt(err) {
		return nil, err
	}

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("cache: remove corrupt %s: %w", p, rmErr)
		}
	}
	db, reopenErr := openSQLiteDB(ctx, path)
	if reopenErr != nil {
		return nil, reopenErr
	}
	return &SQLiteBackend{db: db, corrupt: &CorruptError{Backend: "sqlite", Err: err}}, nil
}

func openSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return db, nil
}

// isCorrupt reports whether err is SQLite saying the file is not a database
// or its pages are malformed.
func isCorrupt(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return true
	}
	return false
}

func (s *SQLiteBackend) Load(ctx context.Context) (map[string]types.CacheEntry, error) {
	if err := s.corrupt; err != nil {
		s.corrupt = nil
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT repo_id, stars, observed_at FROM star_cache`)
	if err != nil {
		if isCorrupt(err) {
			return nil, &CorruptError{Backend: "sqlite", Err: err}
		}
		return nil, fmt.Errorf("cache: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.CacheEntry)
	for rows.Next() {
		var (
			id       string
			stars    int
			observed string
		)
		if err := rows.Scan(&id, &stars, &observed); err != nil {
			return nil, &CorruptError{Backend: "sqlite", Err: err}
		}
		ts, err := time.Parse(time.RFC3339Nano, observed)
		if err != nil {
			return nil, &CorruptError{Backend: "sqlite", Err: fmt.Errorf("row %q: %w", id, err)}
		}
		out[id] = types.CacheEntry{Stars: stars, ObservedAt: ts}
	}
	if err := rows.Err(); err != nil {
		if isCorrupt(err) {
			return nil, &CorruptError{Backend: "sqlite", Err: err}
		}
		return nil, fmt.Errorf("cache: iterate rows: %w", err)
	}
	return out, nil
}

// Save upserts every entry inside one transaction.
func (s *SQLiteBackend) Save(ctx context.Context, entries map[string]types.CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return fmt.Errorf("cache: prepare: %w", err)
	}
	defer stmt.Close()

	for id, e := range entries {
		if _, err := stmt.ExecContext(ctx, id, e.Stars, e.ObservedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("cache: upsert %q: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: commit: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }
