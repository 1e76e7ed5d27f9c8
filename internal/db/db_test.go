package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camspeed/internal/speed"
)

var testLine = speed.ReferenceLine{
	A:              speed.Point{X: 0, Y: 100},
	B:              speed.Point{X: 640, Y: 100},
	MetersPerPixel: 0.05,
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newSession(t *testing.T, db *DB) *Session {
	t.Helper()
	s := &Session{Source: "file:test.jsonl", SiteName: "elm-street", Line: testLine, FPS: 30, Unit: "kmph"}
	require.NoError(t, db.CreateSession(s))
	return s
}

func TestOpenDB_AppliesMigrationsAndPragmas(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestOpenDB_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db1, err := OpenDB(path)
	require.NoError(t, err)
	s := newSession(t, db1)
	require.NoError(t, db1.Close())

	db2, err := OpenDB(path)
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "elm-street", got.SiteName)
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.MigrateDown(MigrationsFS()))

	version, _, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='track_summaries'").Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp(MigrationsFS()))
}

func TestSessions(t *testing.T) {
	db := setupTestDB(t)
	s := newSession(t, db)
	assert.Len(t, s.ID, 36)
	assert.NotZero(t, s.StartedUnix)

	got, err := db.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, testLine, got.Line)
	assert.Nil(t, got.EndedUnix)

	require.NoError(t, db.EndSession(s.ID))
	got, err = db.GetSession(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedUnix)
	assert.GreaterOrEqual(t, *got.EndedUnix, got.StartedUnix)

	_, err = db.GetSession("missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(db.EndSession("missing"), ErrSessionNotFound))

	newSession(t, db)
	list, err := db.ListSessions(10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
