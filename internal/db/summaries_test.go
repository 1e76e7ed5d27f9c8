package db

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camspeed/internal/speed"
)

func TestSpeedPercentiles(t *testing.T) {
	tests := []struct {
		name          string
		values        []float64
		p50, p85, p95 float64
	}{
		{"empty", nil, 0, 0, 0},
		{"single", []float64{42}, 42, 42, 42},
		{"four", []float64{4, 1, 3, 2}, 2, 4, 4},
		{"one to twenty", []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 10, 17, 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]float64(nil), tt.values...)
			p50, p85, p95 := SpeedPercentiles(in)
			assert.Equal(t, tt.p50, p50)
			assert.Equal(t, tt.p85, p85)
			assert.Equal(t, tt.p95, p95)
			assert.Equal(t, tt.values, in, "input must not be reordered")
		})
	}
}

func TestInsertTrackSummary(t *testing.T) {
	db := setupTestDB(t)
	s := newSession(t, db)

	rec, err := db.InsertTrackSummary(s.ID, speed.TrackSummary{
		TrackID: 7, ClassLabel: "truck", FirstFrame: 1, LastFrame: 90, Observations: 90,
		Speed: 30, HasSpeed: true, Unit: "kmph", Samples: []float64{20, 40, 30, 35},
	})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, 4, rec.SampleCount)
	assert.Equal(t, 30.0, *rec.P50Speed)
	assert.Equal(t, 40.0, *rec.MaxSpeed)

	noSpeed, err := db.InsertTrackSummary(s.ID, speed.TrackSummary{TrackID: 8, ClassLabel: "car", Unit: "kmph"})
	require.NoError(t, err)
	assert.Nil(t, noSpeed.FinalSpeed)
	assert.Nil(t, noSpeed.P50Speed)

	list, err := db.ListTrackSummaries(s.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(8), list[0].TrackID)
	assert.Nil(t, list[0].P85Speed)
	assert.Equal(t, int64(7), list[1].TrackID)
	assert.Equal(t, 40.0, *list[1].P95Speed)
}

func TestGetSpeedSummary(t *testing.T) {
	db := setupTestDB(t)
	s := newSession(t, db)

	empty, err := db.GetSpeedSummary(s.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)

	for _, kmh := range []float64{10, 25, 35, 45, 60} {
		require.NoError(t, db.InsertSample(s.ID, sample(1, kmh)))
	}
	bus := sample(2, 45)
	bus.ClassLabel = ""
	require.NoError(t, db.InsertSample(s.ID, bus))

	sum, err := db.GetSpeedSummary(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Count)
	assert.Equal(t, "kmph", sum.Unit)
	assert.InDelta(t, 220.0/6, sum.MeanSpeed, 1e-9)
	assert.InDelta(t, 60.0, sum.MaxSpeed, 1e-9)
	assert.InDelta(t, 35.0, sum.P50Speed, 1e-9)
	assert.Equal(t, map[string]int{"car": 5, "unknown": 1}, sum.ByClass)
	assert.Equal(t, map[string]int{"0-20": 1, "20-30": 1, "30-40": 1, "40-50": 2, "50+": 1}, sum.SpeedBuckets)

	other := newSession(t, db)
	require.NoError(t, db.InsertSample(other.ID, sample(3, 5)))
	all, err := db.GetSpeedSummary("")
	require.NoError(t, err)
	assert.Equal(t, 7, all.Count)
}

func TestGetSpeedSummary_MixedUnits(t *testing.T) {
	db := setupTestDB(t)
	kmh := newSession(t, db)
	require.NoError(t, db.InsertSample(kmh.ID, sample(1, 36)))

	mps := &Session{Source: "udp:0.0.0.0:7070", Line: testLine, FPS: 25, Unit: "mps"}
	require.NoError(t, db.CreateSession(mps))
	slow := sample(1, 10)
	slow.DistanceMeters = 10
	slow.Unit = "mps"
	require.NoError(t, db.InsertSample(mps.ID, slow))

	all, err := db.GetSpeedSummary("")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Count)
	assert.Equal(t, "kmph", all.Unit)
	assert.InDelta(t, 36.0, all.MeanSpeed, 1e-9)
	assert.InDelta(t, 36.0, all.MaxSpeed, 1e-9)

	one, err := db.GetSpeedSummary(mps.ID)
	require.NoError(t, err)
	assert.Equal(t, "mps", one.Unit)
	assert.InDelta(t, 10.0, one.MeanSpeed, 1e-9)
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := setupTestDB(t)
	newSession(t, db)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	// gzip magic
	require.GreaterOrEqual(t, rec.Body.Len(), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, rec.Body.Bytes()[:2])
}
