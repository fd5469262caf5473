package queue

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openDB opens the WTC SQLite database at path and configures it for
// concurrent use (WAL mode). Use ":memory:" for tests.
func openDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open wtc database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	// The WTC table is a single shared queue; SQLite only supports one
	// writer at a time regardless, so cap the pool to avoid SQLITE_BUSY
	// pile-ups under the default busy timeout.
	db.SetMaxOpenConns(1)

	return db, nil
}
