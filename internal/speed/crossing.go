package speed

// Side is the position of a point relative to the reference line.
type Side int

const (
	SideUnknown Side = iota // No observation yet
	SideAbove               // Negative cross product; the visual upper half for a left-to-right line
	SideBelow               // Positive cross product
	SideOnLine              // Exactly collinear; never starts or ends a crossing
)

// String implements fmt.Stringer.
func (s Side) String() string {
	switch s {
	case SideAbove:
		return "above"
	case SideBelow:
		return "below"
	case SideOnLine:
		return "on_line"
	default:
		return "unknown"
	}
}

// known reports whether s is one of the two half-planes.
func (s Side) known() bool {
	return s == SideAbove || s == SideBelow
}

// ClassifySide returns which side of line p lies on, using the sign of the
// cross product of the line direction against the vector from A to p.
func ClassifySide(p Point, line ReferenceLine) Side {
	c := cross(line.direction(), p.Sub(line.A))
	switch {
	case c < 0:
		return SideAbove
	case c > 0:
		return SideBelow
	default:
		return SideOnLine
	}
}

// DetectCrossing reports a crossing iff both sides are known half-planes and
// they differ. OnLine and Unknown never produce a transition.
func DetectCrossing(previous, current Side) bool {
	return previous.known() && current.known() && previous != current
}

// WithinSpan reports whether the projection of p onto the line falls between
// A and B, i.e. p is in front of the finite gate rather than beside it.
func WithinSpan(p Point, line ReferenceLine) bool {
	d := line.direction()
	t := dot(p.Sub(line.A), d)
	return t >= 0 && t <= dot(d, d)
}
