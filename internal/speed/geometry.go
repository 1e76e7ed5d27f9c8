package speed

import (
	"errors"
	"math"
)

var (
	// ErrDegenerateLine is returned when both reference line endpoints coincide.
	ErrDegenerateLine = errors.New("reference line has zero length")
	// ErrInvalidScale is returned for a non-positive metres-per-pixel scale.
	ErrInvalidScale = errors.New("meters per pixel must be positive")
)

// Point is a pixel coordinate. Y grows downward, as in image space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Distance returns the euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// cross returns the z component of the 2D cross product a × b.
func cross(a, b Point) float64 {
	return a.X*b.Y - a.Y*b.X
}

func dot(a, b Point) float64 {
	return a.X*b.X + a.Y*b.Y
}

// BoundingBox is an axis-aligned pixel rectangle given by two corners.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Anchor returns the bottom-centre of the box, the closest approximation to
// the object's ground contact for a fixed, downward-tilted camera.
func (b BoundingBox) Anchor() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: math.Max(b.Y1, b.Y2),
	}
}

// ReferenceLine is the calibrated segment crossings are measured against.
// MetersPerPixel is assumed uniform along the line.
type ReferenceLine struct {
	A              Point   `json:"a"`
	B              Point   `json:"b"`
	MetersPerPixel float64 `json:"meters_per_pixel"`
}

// Validate rejects lines no speed can be computed against.
func (l ReferenceLine) Validate() error {
	if l.A == l.B {
		return ErrDegenerateLine
	}
	if !(l.MetersPerPixel > 0) || math.IsInf(l.MetersPerPixel, 0) {
		return ErrInvalidScale
	}
	return nil
}

// Length returns the pixel length of the line segment.
func (l ReferenceLine) Length() float64 {
	return Distance(l.A, l.B)
}

// direction returns the vector from A to B.
func (l ReferenceLine) direction() Point {
	return l.B.Sub(l.A)
}
