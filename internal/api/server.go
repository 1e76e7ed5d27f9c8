// Package api serves the estimator's live overlays and persisted
// measurements over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/camspeed/internal/db"
	"github.com/banshee-data/camspeed/internal/httputil"
	"github.com/banshee-data/camspeed/internal/monitoring"
	"github.com/banshee-data/camspeed/internal/serialmux"
	"github.com/banshee-data/camspeed/internal/speed"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// OverlaySource provides the most recent frame's overlays.
type OverlaySource interface {
	Latest() (frame int64, overlays []speed.Overlay, ok bool)
}

type Server struct {
	db        *db.DB
	overlays  OverlaySource
	sessionID string
	m         serialmux.SerialMuxInterface
}

// NewServer builds a server over database for the given session. Any of
// overlays and m may be nil, in which case their endpoints report 404.
func NewServer(database *db.DB, overlays OverlaySource, sessionID string, m serialmux.SerialMuxInterface) *Server {
	return &Server{
		db:        database,
		overlays:  overlays,
		sessionID: sessionID,
		m:         m,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/overlays", s.showOverlays)
	mux.HandleFunc("/api/samples", s.listSamples)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/charts/speeds", s.speedCharts)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

// session resolves the session_id query parameter: absent means the server's
// own session, "all" means every session.
func (s *Server) session(r *http.Request) string {
	switch id := r.URL.Query().Get("session_id"); id {
	case "":
		return s.sessionID
	case "all":
		return ""
	default:
		return id
	}
}

type overlayJSON struct {
	speed.Overlay
	Label string `json:"label"`
}

type overlaysResponse struct {
	Frame    int64         `json:"frame"`
	Overlays []overlayJSON `json:"overlays"`
}

func (s *Server) showOverlays(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	if s.overlays == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no live feed")
		return
	}
	frame, overlays, ok := s.overlays.Latest()
	if !ok {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no frames processed yet")
		return
	}
	resp := overlaysResponse{Frame: frame, Overlays: make([]overlayJSON, 0, len(overlays))}
	for _, o := range overlays {
		resp.Overlays = append(resp.Overlays, overlayJSON{Overlay: o, Label: o.Label()})
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	trackID, err := httputil.QueryInt64Ptr(r, "track_id")
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := s.db.ListSamples(db.SampleFilter{SessionID: s.session(r), TrackID: trackID, Limit: limit})
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if samples == nil {
		samples = []db.SampleRecord{}
	}
	httputil.WriteJSONOK(w, samples)
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	summary, err := s.db.GetSpeedSummary(s.session(r))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSONOK(w, summary)
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	tracks, err := s.db.ListTrackSummaries(s.session(r), limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tracks == nil {
		tracks = []db.TrackRecord{}
	}
	httputil.WriteJSONOK(w, tracks)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	if id := r.URL.Query().Get("session_id"); id != "" {
		session, err := s.db.GetSession(id)
		if errors.Is(err, db.ErrSessionNotFound) {
			httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httputil.WriteJSONOK(w, session)
		return
	}

	limit, err := httputil.QueryInt(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := s.db.ListSessions(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodPost) {
		return
	}
	if s.m == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no serial device")
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "missing command")
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "sent", "command": command})
}
