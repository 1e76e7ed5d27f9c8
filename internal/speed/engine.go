package speed

import (
	"errors"
	"fmt"

	"github.com/banshee-data/camspeed/internal/monitoring"
	"github.com/banshee-data/camspeed/internal/units"
)

// ErrFrameOutOfOrder is returned by ProcessFrame when the frame index is lower
// than the last processed one. The frame is ignored.
var ErrFrameOutOfOrder = errors.New("frame index is lower than the last processed frame")

// Detection is one object observed in a frame, with an identity assigned by
// an upstream tracker.
type Detection struct {
	TrackID    int64       `json:"track_id"`
	ClassLabel string      `json:"class"`
	Box        BoundingBox `json:"box"`
}

// Overlay is everything a renderer needs to draw one tracked object.
type Overlay struct {
	TrackID       int64       `json:"track_id"`
	ClassLabel    string      `json:"class"`
	Box           BoundingBox `json:"box"`
	Trail         []Point     `json:"trail"`
	Speed         float64     `json:"speed,omitempty"`
	HasSpeed      bool        `json:"has_speed"`
	Unit          string      `json:"unit"`
	LastSeenFrame int64       `json:"last_seen_frame"`
	Visible       bool        `json:"visible"` // Detected in the most recent frame
}

// Label returns the text drawn next to the box, e.g. "car 42.3 km/h".
func (o Overlay) Label() string {
	if !o.HasSpeed {
		return o.ClassLabel
	}
	return fmt.Sprintf("%s %.1f %s", o.ClassLabel, o.Speed, units.Label(o.Unit))
}

// Sample describes one completed measurement window.
type Sample struct {
	TrackID        int64
	ClassLabel     string
	OpenFrame      int64
	CloseFrame     int64
	OpenPoint      Point
	ClosePoint     Point
	ElapsedSeconds float64
	DistanceMeters float64
	RawSpeed       float64
	Smoothed       float64
	Unit           string
}

// TrackSummary describes a track at the moment it is evicted.
type TrackSummary struct {
	TrackID      int64
	ClassLabel   string
	FirstFrame   int64
	LastFrame    int64
	Observations int
	Speed        float64
	HasSpeed     bool
	Unit         string
	Samples      []float64 // Raw samples, oldest first
}

// Listener observes engine events. Calls are synchronous, on the goroutine
// driving ProcessFrame.
type Listener interface {
	SampleRecorded(Sample)
	TrackEvicted(TrackSummary)
}

// Option configures an Engine.
type Option func(*Engine)

// WithListener attaches an event listener.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithLogger overrides the diagnostic logger for per-detection anomalies.
func WithLogger(f func(format string, v ...interface{})) Option {
	return func(e *Engine) { e.logf = f }
}

// Engine turns per-frame detections into smoothed speed estimates.
type Engine struct {
	cfg      Config
	store    *Store
	classes  map[string]bool
	listener Listener
	logf     func(format string, v ...interface{})

	lastFrame int64
	started   bool
	seen      map[int64]bool // Track ids updated in lastFrame
}

// NewEngine validates cfg and returns a ready engine. Zero-valued tunables
// take their defaults.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:   cfg,
		store: NewStore(),
		seen:  make(map[int64]bool),
	}
	if len(cfg.Classes) > 0 {
		e.classes = make(map[string]bool, len(cfg.Classes))
		for _, c := range cfg.Classes {
			e.classes[c] = true
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logf == nil {
		e.logf = func(format string, v ...interface{}) { monitoring.Debugf(format, v...) }
	}
	e.store.OnEvict(e.evicted)
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Len returns the number of live tracks.
func (e *Engine) Len() int {
	return e.store.Len()
}

// LastFrame returns the index of the last processed frame.
func (e *Engine) LastFrame() int64 {
	return e.lastFrame
}

// Track returns a copy of the state for id.
func (e *Engine) Track(id int64) (TrackState, bool) {
	st, ok := e.store.Get(id)
	if !ok {
		return TrackState{}, false
	}
	return st.clone(), true
}

// ProcessFrame consumes the detections of one frame and returns the overlays
// for every tracked object. Per-detection anomalies are dropped and logged;
// the only error is a frame index that goes backwards.
func (e *Engine) ProcessFrame(frameIndex int64, detections []Detection) ([]Overlay, error) {
	if e.started && frameIndex < e.lastFrame {
		return nil, fmt.Errorf("%w: got %d after %d", ErrFrameOutOfOrder, frameIndex, e.lastFrame)
	}
	e.started = true
	e.lastFrame = frameIndex
	e.seen = make(map[int64]bool, len(detections))

	for _, det := range detections {
		e.update(frameIndex, det)
	}

	e.expireCrossings(frameIndex)
	e.store.EvictStale(frameIndex, e.cfg.EvictAfterFrames)

	return e.Overlays(), nil
}

// update applies a single detection.
func (e *Engine) update(frame int64, det Detection) {
	if e.classes != nil && !e.classes[det.ClassLabel] {
		e.logf("dropping track %d: unknown class %q", det.TrackID, det.ClassLabel)
		return
	}
	if e.seen[det.TrackID] {
		e.logf("dropping duplicate detection of track %d in frame %d", det.TrackID, frame)
		return
	}
	e.seen[det.TrackID] = true

	st, ok := e.store.Get(det.TrackID)
	if ok && isStale(st, frame, e.cfg.EvictAfterFrames) {
		// The id was reused after an absence the sweep never saw, e.g. skipped
		// frame indices. Retire the old track before starting a new one.
		e.evicted(st)
		e.store.Delete(det.TrackID)
		ok = false
	}
	if !ok {
		st = newTrackState(det.TrackID, frame)
		e.store.Upsert(det.TrackID, st)
	}

	e.expireCrossing(st, frame)

	current := det.Box.Anchor()
	side := ClassifySide(current, e.cfg.Line)

	if st.HasPrevious && DetectCrossing(st.PreviousSide, side) && e.gateAllows(current) {
		if !st.CrossingPending {
			st.CrossingPending = true
			st.CrossingFrame = frame
			st.CrossingPoint = current
		} else {
			e.closeWindow(st, frame, current, det.ClassLabel)
		}
	}

	st.ClassLabel = det.ClassLabel
	st.Box = det.Box
	st.PreviousPoint = current
	st.HasPrevious = true
	st.PreviousSide = side
	st.LastSeenFrame = frame
	st.Observations++
	st.pushTrail(current, e.cfg.TrailLength)
}

func (e *Engine) gateAllows(p Point) bool {
	return !e.cfg.GateToSegment || WithinSpan(p, e.cfg.Line)
}

// closeWindow turns a return crossing into a speed sample.
func (e *Engine) closeWindow(st *TrackState, frame int64, current Point, class string) {
	defer st.clearCrossing()

	elapsedFrames := frame - st.CrossingFrame
	if elapsedFrames <= 0 {
		e.logf("track %d: discarding sample with %d elapsed frames", st.TrackID, elapsedFrames)
		return
	}

	dt := float64(elapsedFrames) / e.cfg.FPS
	meters := Distance(st.CrossingPoint, current) * e.cfg.Line.MetersPerPixel
	raw := units.ConvertSpeed(meters/dt, e.cfg.Unit)

	if st.HasSpeed {
		a := e.cfg.SmoothingFactor
		st.Speed = a*raw + (1-a)*st.Speed
	} else {
		st.Speed = raw
		st.HasSpeed = true
	}
	st.pushSample(raw)

	if e.listener != nil {
		e.listener.SampleRecorded(Sample{
			TrackID:        st.TrackID,
			ClassLabel:     class,
			OpenFrame:      st.CrossingFrame,
			CloseFrame:     frame,
			OpenPoint:      st.CrossingPoint,
			ClosePoint:     current,
			ElapsedSeconds: dt,
			DistanceMeters: meters,
			RawSpeed:       raw,
			Smoothed:       st.Speed,
			Unit:           e.cfg.Unit,
		})
	}
}

// expireCrossings abandons measurement windows that were never closed, so a
// stale crossing point can never be used.
func (e *Engine) expireCrossings(frame int64) {
	for _, id := range e.store.IDs() {
		st, _ := e.store.Get(id)
		e.expireCrossing(st, frame)
	}
}

func (e *Engine) expireCrossing(st *TrackState, frame int64) {
	if st.CrossingPending && frame-st.CrossingFrame > e.cfg.CrossingTimeoutFrames {
		e.logf("track %d: crossing opened at frame %d timed out", st.TrackID, st.CrossingFrame)
		st.clearCrossing()
	}
}

func (e *Engine) evicted(st *TrackState) {
	if e.listener == nil {
		return
	}
	e.listener.TrackEvicted(TrackSummary{
		TrackID:      st.TrackID,
		ClassLabel:   st.ClassLabel,
		FirstFrame:   st.FirstSeenFrame,
		LastFrame:    st.LastSeenFrame,
		Observations: st.Observations,
		Speed:        st.Speed,
		HasSpeed:     st.HasSpeed,
		Unit:         e.cfg.Unit,
		Samples:      st.Samples(),
	})
}

// Flush evicts every live track, notifying the listener, and returns how
// many were evicted. Call it when the feed ends.
func (e *Engine) Flush() int {
	ids := e.store.IDs()
	for _, id := range ids {
		st, _ := e.store.Get(id)
		e.evicted(st)
		e.store.Delete(id)
	}
	e.seen = make(map[int64]bool)
	return len(ids)
}

// Overlays returns overlay records for the current state, ascending by track
// id. It does not mutate the engine; repeated calls return equal values.
func (e *Engine) Overlays() []Overlay {
	ids := e.store.IDs()
	out := make([]Overlay, 0, len(ids))
	for _, id := range ids {
		st, _ := e.store.Get(id)
		trail := make([]Point, len(st.Trail))
		copy(trail, st.Trail)
		out = append(out, Overlay{
			TrackID:       id,
			ClassLabel:    st.ClassLabel,
			Box:           st.Box,
			Trail:         trail,
			Speed:         st.Speed,
			HasSpeed:      st.HasSpeed,
			Unit:          e.cfg.Unit,
			LastSeenFrame: st.LastSeenFrame,
			Visible:       e.seen[id],
		})
	}
	return out
}
