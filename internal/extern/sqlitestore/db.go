// Package sqlitestore is a SQLite-backed implementation of the
// internal/extern interfaces (spec §1's "out of scope" external
// database, camera resolver, and multimedia resolver, given a concrete
// backing store so this module can run end to end without a live
// production record database). It mirrors internal/queue's
// open-then-migrate shape exactly.
package sqlitestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed source-of-truth snapshot: devices,
// banners, hardware records, and the smaller lookup tables the
// translator's collaborators need.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the source-of-truth database at
// path and runs pending migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
