// Package store is the sqlite-backed data layer: entity accessors for the
// wedding-planning domain plus the retrying transaction wrapper every
// multi-row mutation runs inside.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the sqlite database at path with the
// pragmas the pipeline relies on:
//
//	busy_timeout(5000): wait up to 5s when the database is locked
//	journal_mode(WAL): concurrent readers during writes
//	foreign_keys(1): enforce ON DELETE CASCADE between entities
//
// Writes are serialized through a single connection; sqlite cannot commit
// two writers concurrently anyway, and a pool of one avoids spurious
// SQLITE_BUSY under load.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	return db, nil
}

// OpenMemory opens a private in-memory database. Used by tests.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
