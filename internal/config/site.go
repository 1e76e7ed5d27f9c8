package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/camspeed/internal/speed"
)

// PointConfig is a pixel coordinate in the site file.
type PointConfig struct {
	X float64 `yaml:"x" validate:"gte=0"`
	Y float64 `yaml:"y" validate:"gte=0"`
}

// SiteConfig describes one camera installation: the calibrated reference
// line, its scale and the stream's frame rate.
type SiteConfig struct {
	Name           string      `yaml:"name" validate:"required"`
	CameraID       string      `yaml:"camera_id" validate:"omitempty,max=64"`
	LineStart      PointConfig `yaml:"line_start"`
	LineEnd        PointConfig `yaml:"line_end"`
	MetersPerPixel float64     `yaml:"meters_per_pixel" validate:"gt=0"`
	FPS            float64     `yaml:"fps" validate:"gt=0,lte=1000"`
}

// LoadSiteConfig loads and validates a YAML site file.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yml", ".yaml":
	default:
		return nil, fmt.Errorf("site file must have .yml or .yaml extension, got %q", ext)
	}

	data, err := readLimited(cleanPath)
	if err != nil {
		return nil, err
	}
	return ParseSiteConfig(data)
}

// ParseSiteConfig decodes and validates a YAML site document.
func ParseSiteConfig(data []byte) (*SiteConfig, error) {
	var site SiteConfig
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to parse site YAML: %w", err)
	}
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("invalid site configuration: %w", err)
	}
	return &site, nil
}

// Validate checks struct tags and the geometry the tags cannot express.
func (s *SiteConfig) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return err
	}
	return s.ReferenceLine().Validate()
}

// ReferenceLine returns the calibrated line in engine terms.
func (s *SiteConfig) ReferenceLine() speed.ReferenceLine {
	return speed.ReferenceLine{
		A:              speed.Point{X: s.LineStart.X, Y: s.LineStart.Y},
		B:              speed.Point{X: s.LineEnd.X, Y: s.LineEnd.Y},
		MetersPerPixel: s.MetersPerPixel,
	}
}
