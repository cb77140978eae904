// Package sqlitedb opens the profile's SQLite databases and converts the
// deletion time range into the integer timestamps they store.
package sqlitedb

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// BusyTimeout is how long a statement waits for a lock held by another connection.
const BusyTimeout = 5 * time.Second

// Open opens (or creates) the database at path and applies schema, if any.
func Open(path, schema string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serialises writers; concurrent clears queue instead of
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// Another process (a scheduler daemon next to a CLI clear) may hold the write lock.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if schema == "" {
		return db, nil
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}

// Micros converts t to the stored representation (Unix microseconds).
func Micros(t time.Time) int64 { return t.UnixMicro() }

// Bounds returns [lo, hi) in microseconds. A zero begin is unbounded below and
// a zero end unbounded above.
func Bounds(begin, end time.Time) (lo, hi int64) {
	lo, hi = math.MinInt64, math.MaxInt64
	if !begin.IsZero() {
		lo = Micros(begin)
	}
	if !end.IsZero() {
		hi = Micros(end)
	}
	return lo, hi
}

// Placeholders returns "?, ?, ..." for n arguments.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
