package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory database. The store keeps a single
// connection, so the database lives as long as the Store.
const MemoryPath = ":memory:"

// pragmas are applied on every Open. WAL lets `hookrun trace` read while a
// run is writing; the busy timeout covers two processes on one file.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// migrations[i] upgrades a database from user_version i to i+1. schema.sql
// always creates the current tables, so migrations only add what older
// files lack.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_invocations_parent ON invocations(parent_id)`,
}

var currentSchemaVersion = len(migrations)

// Store is the SQLite trace log of invocations and completions.
// It implements engine.Recorder.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and brings its schema up to
// date. Opening the same file again is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has one writer; a single connection also keeps a :memory:
	// database alive for the life of the Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func setup(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for ; version < currentSchemaVersion; version++ {
		if _, err := db.Exec(migrations[version]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database. Apps under test share it for their
// own tables.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query runs an ad-hoc query, as the harness final_state assertion does.
// Callers close the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
