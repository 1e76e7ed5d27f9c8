package feed

import (
	"sync"
	"time"

	"github.com/banshee-data/camspeed/internal/monitoring"
)

// Stats counts frames read by a source.
type Stats struct {
	mu             sync.Mutex
	frameCount     int64
	byteCount      int64
	malformedCount int64
	lastReset      time.Time
}

// NewStats creates a Stats whose first interval starts now.
func NewStats() *Stats {
	return &Stats{lastReset: time.Now()}
}

// AddFrame records a decoded frame of n bytes.
func (s *Stats) AddFrame(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameCount++
	s.byteCount += int64(n)
}

// AddMalformed records a message that failed to decode or a detection that
// was dropped from an otherwise valid frame.
func (s *Stats) AddMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformedCount++
}

// GetAndReset returns current counts and starts a new interval.
func (s *Stats) GetAndReset() (frames, bytes, malformed int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration = now.Sub(s.lastReset)
	frames, bytes, malformed = s.frameCount, s.byteCount, s.malformedCount

	s.frameCount = 0
	s.byteCount = 0
	s.malformedCount = 0
	s.lastReset = now
	return
}

// LogStats logs per-second rates for the interval since the last call.
func (s *Stats) LogStats(name string) {
	frames, bytes, malformed, duration := s.GetAndReset()
	if frames == 0 && malformed == 0 {
		return
	}
	secs := duration.Seconds()
	monitoring.Logf("[feed] %s stats (/sec): %.1f frames, %.1f KB, %d malformed",
		name, float64(frames)/secs, float64(bytes)/secs/1024, malformed)
}

// noteMalformed logs and counts a frame that failed to decode.
func noteMalformed(stats *Stats, source string, err error) {
	if stats != nil {
		stats.AddMalformed()
	}
	monitoring.Logf("[feed] %s: skipping frame: %v", source, err)
}

// noteRejected logs and counts the detections Decode dropped from f.
func noteRejected(stats *Stats, source string, f Frame) {
	for _, err := range f.Rejected {
		if stats != nil {
			stats.AddMalformed()
		}
		monitoring.Logf("[feed] %s: skipping detection: %v", source, err)
	}
}
