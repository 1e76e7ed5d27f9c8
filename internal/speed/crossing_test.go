package speed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var horizon = ReferenceLine{A: Point{X: 0, Y: 100}, B: Point{X: 640, Y: 100}, MetersPerPixel: 0.05}

func TestClassifySide(t *testing.T) {
	diagonal := ReferenceLine{A: Point{0, 0}, B: Point{100, 100}, MetersPerPixel: 1}

	tests := []struct {
		name  string
		point Point
		line  ReferenceLine
		want  Side
	}{
		{"above horizontal line", Point{50, 90}, horizon, SideAbove},
		{"below horizontal line", Point{50, 150}, horizon, SideBelow},
		{"on horizontal line", Point{320, 100}, horizon, SideOnLine},
		{"on extension of line", Point{2000, 100}, horizon, SideOnLine},
		{"beyond segment still classified", Point{-500, 50}, horizon, SideAbove},
		{"diagonal upper right", Point{80, 20}, diagonal, SideAbove},
		{"diagonal lower left", Point{20, 80}, diagonal, SideBelow},
		{"diagonal on line", Point{42, 42}, diagonal, SideOnLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySide(tt.point, tt.line))
		})
	}
}

func TestClassifySide_Stable(t *testing.T) {
	p := Point{X: 123.456, Y: 99.999}
	first := ClassifySide(p, horizon)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ClassifySide(p, horizon))
	}
}

func TestClassifySide_ReversedLineFlipsSides(t *testing.T) {
	reversed := ReferenceLine{A: horizon.B, B: horizon.A, MetersPerPixel: horizon.MetersPerPixel}
	assert.Equal(t, SideBelow, ClassifySide(Point{50, 90}, reversed))
	assert.Equal(t, SideAbove, ClassifySide(Point{50, 150}, reversed))
}

func TestDetectCrossing(t *testing.T) {
	tests := []struct {
		prev, cur Side
		want      bool
	}{
		{SideAbove, SideAbove, false},
		{SideBelow, SideBelow, false},
		{SideAbove, SideBelow, true},
		{SideBelow, SideAbove, true},
		{SideUnknown, SideBelow, false},
		{SideUnknown, SideAbove, false},
		{SideAbove, SideOnLine, false},
		{SideOnLine, SideBelow, false},
		{SideOnLine, SideOnLine, false},
		{SideAbove, SideUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.prev.String()+"->"+tt.cur.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCrossing(tt.prev, tt.cur))
		})
	}
}

func TestWithinSpan(t *testing.T) {
	assert.True(t, WithinSpan(Point{0, 50}, horizon))
	assert.True(t, WithinSpan(Point{320, 150}, horizon))
	assert.True(t, WithinSpan(Point{640, 90}, horizon))
	assert.False(t, WithinSpan(Point{-1, 90}, horizon))
	assert.False(t, WithinSpan(Point{700, 150}, horizon))
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "above", SideAbove.String())
	assert.Equal(t, "below", SideBelow.String())
	assert.Equal(t, "on_line", SideOnLine.String())
	assert.Equal(t, "unknown", SideUnknown.String())
}
