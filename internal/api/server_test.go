package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camspeed/internal/db"
	"github.com/banshee-data/camspeed/internal/pipeline"
	"github.com/banshee-data/camspeed/internal/serialmux"
	"github.com/banshee-data/camspeed/internal/speed"
)

type fixture struct {
	db      *db.DB
	session *db.Session
	cache   *pipeline.OverlayCache
	port    *serialmux.TestableSerialPort
	mux     *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	session := &db.Session{
		Source: "test",
		Line: speed.ReferenceLine{
			A:              speed.Point{X: 0, Y: 100},
			B:              speed.Point{X: 640, Y: 100},
			MetersPerPixel: 0.05,
		},
		FPS:  30,
		Unit: "kmph",
	}
	require.NoError(t, database.CreateSession(session))

	cache := pipeline.NewOverlayCache()
	port := serialmux.NewTestableSerialPort()
	srv := NewServer(database, cache, session.ID, serialmux.NewSerialMux(port))
	return &fixture{db: database, session: session, cache: cache, port: port, mux: srv.ServeMux()}
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) addSample(t *testing.T, trackID int64, kmh float64) {
	t.Helper()
	require.NoError(t, f.db.InsertSample(f.session.ID, speed.Sample{
		TrackID: trackID, ClassLabel: "car", OpenFrame: 10, CloseFrame: 40,
		ElapsedSeconds: 1, DistanceMeters: kmh / 3.6, RawSpeed: kmh, Smoothed: kmh, Unit: "kmph",
	}))
}

func TestShowOverlays(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/overlays", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.cache.PublishOverlays(40, []speed.Overlay{{
		TrackID: 1, ClassLabel: "car", Speed: 10.8, HasSpeed: true, Unit: "kmph", Visible: true,
	}})
	rec = f.do(t, http.MethodGet, "/api/overlays", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Frame    int64 `json:"frame"`
		Overlays []struct {
			TrackID int64   `json:"track_id"`
			Speed   float64 `json:"speed"`
			Label   string  `json:"label"`
		} `json:"overlays"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(40), resp.Frame)
	require.Len(t, resp.Overlays, 1)
	assert.Equal(t, "car 10.8 km/h", resp.Overlays[0].Label)

	rec = f.do(t, http.MethodPost, "/api/overlays", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListSamples(t *testing.T) {
	f := newFixture(t)
	f.addSample(t, 1, 10.8)
	f.addSample(t, 2, 30)
	f.addSample(t, 1, 12)

	tests := []struct {
		name   string
		target string
		status int
		count  int
	}{
		{"all for session", "/api/samples", http.StatusOK, 3},
		{"by track", "/api/samples?track_id=1", http.StatusOK, 2},
		{"limited", "/api/samples?limit=1", http.StatusOK, 1},
		{"other session", "/api/samples?session_id=nope", http.StatusOK, 0},
		{"every session", "/api/samples?session_id=all", http.StatusOK, 3},
		{"bad limit", "/api/samples?limit=-1", http.StatusBadRequest, 0},
		{"bad track", "/api/samples?track_id=x", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var got []db.SampleRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Len(t, got, tt.count)
		})
	}
}

func TestShowSummary(t *testing.T) {
	f := newFixture(t)
	f.addSample(t, 1, 10)
	f.addSample(t, 2, 45)

	rec := f.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got db.SpeedSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Count)
	assert.InDelta(t, 45.0, got.MaxSpeed, 1e-9)
	assert.Equal(t, 1, got.SpeedBuckets["40-50"])
}

func TestListTracks(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.InsertTrackSummary(f.session.ID, speed.TrackSummary{
		TrackID: 3, ClassLabel: "bus", Speed: 20, HasSpeed: true, Unit: "kmph", Samples: []float64{20},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/tracks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []db.TrackRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "bus", got[0].Class)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []db.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, f.session.ID, list[0].ID)

	rec = f.do(t, http.MethodGet, "/api/sessions?session_id="+f.session.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sessions?session_id=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSpeedCharts(t *testing.T) {
	f := newFixture(t)
	f.addSample(t, 1, 10.8)
	f.addSample(t, 2, 52)

	rec := f.do(t, http.MethodGet, "/charts/speeds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Speed distribution")
	assert.Contains(t, body, "echarts")
}

func TestSendCommand(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/command", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = f.do(t, http.MethodPost, "/command", url.Values{"command": {""}}.Encode())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/command", url.Values{"command": {"RATE 15"}}.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RATE 15\n", f.port.Written())
}

func TestNilCollaborators(t *testing.T) {
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "nil.db"))
	require.NoError(t, err)
	defer database.Close()
	mux := NewServer(database, nil, "", nil).ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/overlays", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader("command=X"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var logged []string
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	restore := captureLogs(&logged)
	defer restore()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary?x=1", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "/api/summary?x=1")
	assert.Contains(t, logged[0], "418")
}
