package sqlitedb

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := Open(path, `CREATE TABLE IF NOT EXISTS things (id INTEGER PRIMARY KEY, at INTEGER NOT NULL)`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("INSERT INTO things (at) VALUES (?)", 1)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM things").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpen_Pragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "pragma.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int64
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, BusyTimeout.Milliseconds(), timeout)
}

func TestOpen_BadSchema(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "bad.db"), "NOT SQL")
	assert.Error(t, err)
}

func TestBounds(t *testing.T) {
	begin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := begin.Add(time.Hour)

	lo, hi := Bounds(begin, end)
	assert.Equal(t, begin.UnixMicro(), lo)
	assert.Equal(t, end.UnixMicro(), hi)

	lo, hi = Bounds(time.Time{}, time.Time{})
	assert.Equal(t, int64(math.MinInt64), lo)
	assert.Equal(t, int64(math.MaxInt64), hi)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}
