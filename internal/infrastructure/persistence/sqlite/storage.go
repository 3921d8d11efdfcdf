// Package sqlite provides a persistent key/value Storage for the local star
// mirror, backed by a pure Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// DefaultOrigin scopes keys when the caller does not name an origin.
const DefaultOrigin = "default"

// Storage keeps key/value pairs per origin in a single table.
type Storage struct {
	db     *sql.DB
	origin string
}

// connPragmas run on every connection the driver opens.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// buildDSN appends connPragmas in modernc's _pragma form so a recycled
// connection comes back with the same settings.
func buildDSN(path string) string {
	params := make([]string, len(connPragmas))
	for i, p := range connPragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// Open opens or creates the database at path. ":memory:" and "file:" DSNs
// are used as given, plus the connection pragmas.
func Open(path, origin string) (*Storage, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the cache assumes a single writer per origin anyway.
	// The connection is never recycled so a ":memory:" database keeps its rows.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if origin == "" {
		origin = DefaultOrigin
	}
	return &Storage{db: db, origin: origin}, nil
}

func initSchema(db *sql.DB) error {
	const query = `
	CREATE TABLE IF NOT EXISTS local_kv (
		origin TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (origin, key)
	);`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Origin returns the origin keys are scoped to.
func (s *Storage) Origin() string {
	return s.origin
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM local_kv WHERE origin = ? AND key = ?`, s.origin, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_kv (origin, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (origin, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.origin, key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM local_kv WHERE origin = ? AND key = ?`, s.origin, key,
	); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM local_kv WHERE origin = ? ORDER BY key`, s.origin)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

