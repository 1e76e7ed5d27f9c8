package speed

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/camspeed/internal/units"
)

// Default tuning values.
const (
	DefaultTrailLength           = 30
	DefaultSmoothingFactor       = 0.6
	DefaultEvictAfterFrames      = 30
	DefaultCrossingTimeoutFrames = 300
)

// ErrInvalidFPS is returned for a non-positive frame rate.
var ErrInvalidFPS = errors.New("frames per second must be positive")

// Config holds the engine's calibration and tuning parameters.
type Config struct {
	Line ReferenceLine
	FPS  float64

	TrailLength           int     // Overlay trail capacity (≥1)
	SmoothingFactor       float64 // EMA weight of the newest sample, in (0, 1]
	EvictAfterFrames      int64   // Frames without a detection before a track is dropped (≥1)
	CrossingTimeoutFrames int64   // Frames an unmatched opening crossing stays valid (≥1)

	// Unit is the display unit of speed estimates (see package units).
	Unit string

	// GateToSegment additionally requires the anchor to project within the
	// segment's span for a crossing to count. Off by default: the line is
	// treated as infinite.
	GateToSegment bool

	// Classes, when non-empty, is the allow-list of class labels. Detections
	// with any other label are dropped.
	Classes []string
}

// DefaultConfig returns a Config with default tuning for the given line and
// frame rate.
func DefaultConfig(line ReferenceLine, fps float64) Config {
	return Config{
		Line:                  line,
		FPS:                   fps,
		TrailLength:           DefaultTrailLength,
		SmoothingFactor:       DefaultSmoothingFactor,
		EvictAfterFrames:      DefaultEvictAfterFrames,
		CrossingTimeoutFrames: DefaultCrossingTimeoutFrames,
		Unit:                  units.Default,
	}
}

// withDefaults fills zero-valued tunables.
func (c Config) withDefaults() Config {
	if c.TrailLength == 0 {
		c.TrailLength = DefaultTrailLength
	}
	if c.SmoothingFactor == 0 {
		c.SmoothingFactor = DefaultSmoothingFactor
	}
	if c.EvictAfterFrames == 0 {
		c.EvictAfterFrames = DefaultEvictAfterFrames
	}
	if c.CrossingTimeoutFrames == 0 {
		c.CrossingTimeoutFrames = DefaultCrossingTimeoutFrames
	}
	if c.Unit == "" {
		c.Unit = units.Default
	}
	return c
}

// Validate checks that a computation is possible with this configuration.
func (c Config) Validate() error {
	if err := c.Line.Validate(); err != nil {
		return fmt.Errorf("invalid reference line: %w", err)
	}
	if !(c.FPS > 0) || math.IsInf(c.FPS, 0) {
		return fmt.Errorf("%w, got %v", ErrInvalidFPS, c.FPS)
	}
	if c.TrailLength < 1 {
		return fmt.Errorf("trail length must be at least 1, got %d", c.TrailLength)
	}
	if !(c.SmoothingFactor > 0 && c.SmoothingFactor <= 1) {
		return fmt.Errorf("smoothing factor must be in (0, 1], got %v", c.SmoothingFactor)
	}
	if c.EvictAfterFrames < 1 {
		return fmt.Errorf("evict after frames must be at least 1, got %d", c.EvictAfterFrames)
	}
	if c.CrossingTimeoutFrames < 1 {
		return fmt.Errorf("crossing timeout frames must be at least 1, got %d", c.CrossingTimeoutFrames)
	}
	if !units.IsValid(c.Unit) {
		return fmt.Errorf("invalid unit %q, expected one of: %s", c.Unit, units.GetValidUnitsString())
	}
	return nil
}
