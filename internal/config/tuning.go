package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/camspeed/internal/speed"
	"github.com/banshee-data/camspeed/internal/units"
)

// DefaultConfigPath is the repository path of the checked-in tuning defaults
// file. Binaries never read it implicitly: an empty -config uses
// DefaultTuningConfig. The file documents the knobs and is kept equal to
// DefaultTuningConfig by tests.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the estimator's tuning parameters. Fields are pointers so
// that a partial file only overrides what it names; the Get* methods supply
// defaults for the rest.
type TuningConfig struct {
	TrailLength           *int      `json:"trail_length,omitempty"`
	SmoothingFactor       *float64  `json:"smoothing_factor,omitempty"`
	EvictAfterFrames      *int64    `json:"evict_after_frames,omitempty"`
	CrossingTimeoutFrames *int64    `json:"crossing_timeout_frames,omitempty"`
	Unit                  *string   `json:"unit,omitempty"`
	GateToSegment         *bool     `json:"gate_to_segment,omitempty"`
	Classes               *[]string `json:"classes,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to the
// engine defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		TrailLength:           ptrInt(speed.DefaultTrailLength),
		SmoothingFactor:       ptrFloat64(speed.DefaultSmoothingFactor),
		EvictAfterFrames:      ptrInt64(speed.DefaultEvictAfterFrames),
		CrossingTimeoutFrames: ptrInt64(speed.DefaultCrossingTimeoutFrames),
		Unit:                  ptrString(units.Default),
		GateToSegment:         ptrBool(false),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := readLimited(cleanPath)
	if err != nil {
		return nil, err
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the checked-in defaults from DefaultConfigPath,
// searching the current directory and common parent directories. It is a test
// fixture helper and panics if the file cannot be loaded.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/speed-plot/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// readLimited reads a config file after checking its size.
func readLimited(path string) ([]byte, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.TrailLength != nil && *c.TrailLength < 1 {
		return fmt.Errorf("trail_length must be at least 1, got %d", *c.TrailLength)
	}

	if c.SmoothingFactor != nil {
		if *c.SmoothingFactor <= 0 || *c.SmoothingFactor > 1 {
			return fmt.Errorf("smoothing_factor must be in (0, 1], got %f", *c.SmoothingFactor)
		}
	}

	if c.EvictAfterFrames != nil && *c.EvictAfterFrames < 1 {
		return fmt.Errorf("evict_after_frames must be at least 1, got %d", *c.EvictAfterFrames)
	}

	if c.CrossingTimeoutFrames != nil && *c.CrossingTimeoutFrames < 1 {
		return fmt.Errorf("crossing_timeout_frames must be at least 1, got %d", *c.CrossingTimeoutFrames)
	}

	if c.Unit != nil && !units.IsValid(*c.Unit) {
		return fmt.Errorf("unit must be one of %s, got %q", units.GetValidUnitsString(), *c.Unit)
	}

	return nil
}

// GetTrailLength returns the trail_length value or the default.
func (c *TuningConfig) GetTrailLength() int {
	if c.TrailLength == nil {
		return speed.DefaultTrailLength
	}
	return *c.TrailLength
}

// GetSmoothingFactor returns the smoothing_factor value or the default.
func (c *TuningConfig) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return speed.DefaultSmoothingFactor
	}
	return *c.SmoothingFactor
}

// GetEvictAfterFrames returns the evict_after_frames value or the default.
func (c *TuningConfig) GetEvictAfterFrames() int64 {
	if c.EvictAfterFrames == nil {
		return speed.DefaultEvictAfterFrames
	}
	return *c.EvictAfterFrames
}

// GetCrossingTimeoutFrames returns the crossing_timeout_frames value or the default.
func (c *TuningConfig) GetCrossingTimeoutFrames() int64 {
	if c.CrossingTimeoutFrames == nil {
		return speed.DefaultCrossingTimeoutFrames
	}
	return *c.CrossingTimeoutFrames
}

// GetUnit returns the unit value or the default.
func (c *TuningConfig) GetUnit() string {
	if c.Unit == nil {
		return units.Default
	}
	return *c.Unit
}

// GetGateToSegment returns the gate_to_segment value or the default.
func (c *TuningConfig) GetGateToSegment() bool {
	if c.GateToSegment == nil {
		return false // default: infinite line
	}
	return *c.GateToSegment
}

// GetClasses returns the class allow-list, or nil to accept every class.
func (c *TuningConfig) GetClasses() []string {
	if c.Classes == nil {
		return nil
	}
	return *c.Classes
}

// EngineConfig combines site calibration and tuning into an engine config.
func (c *TuningConfig) EngineConfig(site *SiteConfig) speed.Config {
	return speed.Config{
		Line:                  site.ReferenceLine(),
		FPS:                   site.FPS,
		TrailLength:           c.GetTrailLength(),
		SmoothingFactor:       c.GetSmoothingFactor(),
		EvictAfterFrames:      c.GetEvictAfterFrames(),
		CrossingTimeoutFrames: c.GetCrossingTimeoutFrames(),
		Unit:                  c.GetUnit(),
		GateToSegment:         c.GetGateToSegment(),
		Classes:               c.GetClasses(),
	}
}
