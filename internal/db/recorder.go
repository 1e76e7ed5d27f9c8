package db

import (
	"sync/atomic"

	"github.com/banshee-data/camspeed/internal/monitoring"
	"github.com/banshee-data/camspeed/internal/speed"
)

// Recorder persists engine events for one session. It implements
// speed.Listener; write failures are logged and counted, never returned to
// the engine.
type Recorder struct {
	db        *DB
	sessionID string
	failures  atomic.Int64
}

var _ speed.Listener = (*Recorder)(nil)

// NewRecorder records into sessionID, which must already exist.
func NewRecorder(db *DB, sessionID string) *Recorder {
	return &Recorder{db: db, sessionID: sessionID}
}

// SessionID returns the session being recorded.
func (r *Recorder) SessionID() string { return r.sessionID }

// Failures returns the number of events that could not be stored.
func (r *Recorder) Failures() int64 { return r.failures.Load() }

func (r *Recorder) SampleRecorded(s speed.Sample) {
	if err := r.db.InsertSample(r.sessionID, s); err != nil {
		r.failures.Add(1)
		monitoring.Logf("[db] track %d: %v", s.TrackID, err)
	}
}

func (r *Recorder) TrackEvicted(s speed.TrackSummary) {
	if _, err := r.db.InsertTrackSummary(r.sessionID, s); err != nil {
		r.failures.Add(1)
		monitoring.Logf("[db] track %d: %v", s.TrackID, err)
	}
}
