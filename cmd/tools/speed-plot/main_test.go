package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camspeed/internal/db"
	"github.com/banshee-data/camspeed/internal/report"
	"github.com/banshee-data/camspeed/internal/speed"
)

func setup(t *testing.T) (*db.DB, *db.Session) {
	t.Helper()
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "plot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	session := &db.Session{
		Source:   "file:test.jsonl",
		SiteName: "elm-street",
		Line:     speed.ReferenceLine{A: speed.Point{X: 0, Y: 100}, B: speed.Point{X: 640, Y: 100}, MetersPerPixel: 0.05},
		FPS:      30,
		Unit:     "kmph",
	}
	require.NoError(t, database.CreateSession(session))
	return database, session
}

func TestRun_LatestSession(t *testing.T) {
	database, session := setup(t)
	for i := 0; i < 12; i++ {
		v := 20 + float64(i)*2.5
		require.NoError(t, database.InsertSample(session.ID, speed.Sample{
			TrackID: int64(i % 3), ClassLabel: "car", OpenFrame: int64(i * 30), CloseFrame: int64(i*30 + 20),
			ElapsedSeconds: 20.0 / 30, DistanceMeters: v / 3.6 * 20 / 30, RawSpeed: v, Smoothed: v, Unit: "kmph",
		}))
	}

	out := filepath.Join(t.TempDir(), "plots")
	paths, err := run(database, Config{OutputDir: out, Bins: 5, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	assert.FileExists(t, filepath.Join(out, "elm-street", "speed_scatter.png"))
}

func TestRun_NoSamples(t *testing.T) {
	database, session := setup(t)
	_, err := run(database, Config{SessionID: session.ID, OutputDir: t.TempDir(), Limit: 10})
	assert.ErrorIs(t, err, report.ErrNoSamples)
}

func TestResolveSession(t *testing.T) {
	database, session := setup(t)

	title, id, err := resolveSession(database, "")
	require.NoError(t, err)
	assert.Equal(t, "elm-street", title)
	assert.Equal(t, session.ID, id)

	_, id, err = resolveSession(database, "all")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, _, err = resolveSession(database, "missing")
	assert.ErrorIs(t, err, db.ErrSessionNotFound)
}
