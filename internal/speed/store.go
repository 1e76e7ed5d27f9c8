package speed

import "sort"

// MaxSampleHistory is the maximum number of raw speed samples kept per track
// for percentile summaries. It does not influence the smoothed estimate.
const MaxSampleHistory = 100

// TrackState is the kinematic state kept for one live track id.
type TrackState struct {
	TrackID    int64
	ClassLabel string
	Box        BoundingBox

	// Last observation. PreviousSide is SideUnknown until the first update.
	PreviousPoint Point
	HasPrevious   bool
	PreviousSide  Side

	FirstSeenFrame int64
	LastSeenFrame  int64
	Observations   int

	// Open measurement window, if any.
	CrossingPending bool
	CrossingFrame   int64
	CrossingPoint   Point

	// Smoothed speed in the engine's display unit. Once HasSpeed is set it
	// stays set until the track is evicted.
	Speed    float64
	HasSpeed bool

	// Recent anchors, most recent last, capped at the engine's trail length.
	Trail []Point

	samples []float64
}

func newTrackState(id int64, frame int64) *TrackState {
	return &TrackState{
		TrackID:        id,
		PreviousSide:   SideUnknown,
		FirstSeenFrame: frame,
		LastSeenFrame:  frame,
	}
}

// pushTrail appends p and drops the oldest points beyond capacity.
func (s *TrackState) pushTrail(p Point, capacity int) {
	s.Trail = append(s.Trail, p)
	if over := len(s.Trail) - capacity; over > 0 {
		// Copy down rather than reslice so the backing array does not grow
		// without bound on long-lived tracks.
		n := copy(s.Trail, s.Trail[over:])
		s.Trail = s.Trail[:n]
	}
}

func (s *TrackState) pushSample(v float64) {
	s.samples = append(s.samples, v)
	if len(s.samples) > MaxSampleHistory {
		s.samples = s.samples[1:]
	}
}

// clearCrossing closes the measurement window without producing a sample.
func (s *TrackState) clearCrossing() {
	s.CrossingPending = false
	s.CrossingFrame = 0
	s.CrossingPoint = Point{}
}

// Samples returns a copy of the raw speed samples recorded for this track.
func (s *TrackState) Samples() []float64 {
	if s.samples == nil {
		return nil
	}
	out := make([]float64, len(s.samples))
	copy(out, s.samples)
	return out
}

// clone returns a deep copy safe to hand to callers.
func (s *TrackState) clone() TrackState {
	c := *s
	if s.Trail != nil {
		c.Trail = make([]Point, len(s.Trail))
		copy(c.Trail, s.Trail)
	}
	c.samples = s.Samples()
	return c
}

// Store maps track ids to their state. It is owned by a single Engine and is
// not safe for concurrent use.
type Store struct {
	tracks  map[int64]*TrackState
	onEvict func(*TrackState)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tracks: make(map[int64]*TrackState)}
}

// OnEvict registers a hook invoked for each state removed by EvictStale,
// before it is deleted.
func (s *Store) OnEvict(fn func(*TrackState)) {
	s.onEvict = fn
}

// Get returns the state for id. A missing id is a normal outcome.
func (s *Store) Get(id int64) (*TrackState, bool) {
	st, ok := s.tracks[id]
	return st, ok
}

// Upsert stores st under id, replacing any previous entry.
func (s *Store) Upsert(id int64, st *TrackState) {
	s.tracks[id] = st
}

// Delete removes id without invoking the eviction hook.
func (s *Store) Delete(id int64) {
	delete(s.tracks, id)
}

// Len returns the number of live tracks.
func (s *Store) Len() int {
	return len(s.tracks)
}

// IDs returns all live track ids in ascending order.
func (s *Store) IDs() []int64 {
	ids := make([]int64, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EvictStale removes every track last seen more than threshold frames before
// currentFrame and returns the evicted ids in ascending order.
func (s *Store) EvictStale(currentFrame, threshold int64) []int64 {
	var evicted []int64
	for id, st := range s.tracks {
		if isStale(st, currentFrame, threshold) {
			evicted = append(evicted, id)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })

	for _, id := range evicted {
		if s.onEvict != nil {
			s.onEvict(s.tracks[id])
		}
		delete(s.tracks, id)
	}
	return evicted
}

func isStale(st *TrackState, currentFrame, threshold int64) bool {
	return currentFrame-st.LastSeenFrame > threshold
}
