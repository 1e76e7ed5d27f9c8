// Package feed decodes detection frames produced by an upstream detector and
// tracker, and reads them from files, UDP, pcap captures or a serial bridge.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/camspeed/internal/speed"
)

var (
	// ErrMalformedFrame wraps every decoding failure.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMalformedDetection wraps the reasons a single detection was dropped.
	ErrMalformedDetection = errors.New("malformed detection")
	// ErrNoFrameIndex is returned when a frame has neither a frame number
	// nor a timestamp.
	ErrNoFrameIndex = errors.New("frame has no frame number or timestamp")
)

// Source yields frames in arrival order. Next returns io.EOF once the source
// is exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Frame is one decoded detector message.
type Frame struct {
	Number      *int64          `json:"frame,omitempty"`
	TimestampNs *int64          `json:"ts_ns,omitempty"`
	Detections  []WireDetection `json:"detections"`

	// Rejected holds one error per detection Decode dropped.
	Rejected []error `json:"-"`
}

// WireDetection is a detection as it appears on the wire; Box is
// [x1, y1, x2, y2] in pixels.
type WireDetection struct {
	TrackID *int64     `json:"track_id"`
	Class   string     `json:"class"`
	Box     [4]float64 `json:"box"`
}

// Decode parses one JSON frame. Only unparseable JSON or a missing index
// fails the frame; a bad detection is removed and reported in Rejected.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if f.Number == nil && f.TimestampNs == nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, ErrNoFrameIndex)
	}
	kept := f.Detections[:0]
	for i, d := range f.Detections {
		if err := checkDetection(d); err != nil {
			f.Rejected = append(f.Rejected, fmt.Errorf("%w: detection %d %w", ErrMalformedDetection, i, err))
			continue
		}
		kept = append(kept, d)
	}
	f.Detections = kept
	return f, nil
}

func checkDetection(d WireDetection) error {
	if d.TrackID == nil {
		return errors.New("has no track_id")
	}
	for _, v := range d.Box {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("has a non-finite box")
		}
	}
	return nil
}

// Encode renders a frame in wire form.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// NewFrame builds a numbered frame from engine detections.
func NewFrame(number int64, dets ...speed.Detection) Frame {
	f := Frame{Number: &number, Detections: make([]WireDetection, 0, len(dets))}
	for _, d := range dets {
		id := d.TrackID
		f.Detections = append(f.Detections, WireDetection{
			TrackID: &id,
			Class:   d.ClassLabel,
			Box:     [4]float64{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
		})
	}
	return f
}

// Index returns the frame number, deriving it from the timestamp at fps when
// the message carries no explicit number.
func (f Frame) Index(fps float64) int64 {
	if f.Number != nil {
		return *f.Number
	}
	if f.TimestampNs == nil {
		return 0
	}
	return int64(math.Round(float64(*f.TimestampNs) / 1e9 * fps))
}

// EngineDetections converts the wire detections for the engine.
func (f Frame) EngineDetections() []speed.Detection {
	dets := make([]speed.Detection, 0, len(f.Detections))
	for _, d := range f.Detections {
		var id int64
		if d.TrackID != nil {
			id = *d.TrackID
		}
		dets = append(dets, speed.Detection{
			TrackID:    id,
			ClassLabel: d.Class,
			Box:        speed.BoundingBox{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]},
		})
	}
	return dets
}
