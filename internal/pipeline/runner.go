// Package pipeline drives a speed engine from a detection feed and hands the
// resulting overlays to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/camspeed/internal/feed"
	"github.com/banshee-data/camspeed/internal/monitoring"
	"github.com/banshee-data/camspeed/internal/speed"
	"github.com/banshee-data/camspeed/internal/timeutil"
)

// Sink receives the overlays produced for each frame. The slice is freshly
// built per frame and shared by every sink, so sinks must not modify it.
type Sink interface {
	PublishOverlays(frame int64, overlays []speed.Overlay)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame int64, overlays []speed.Overlay)

func (f SinkFunc) PublishOverlays(frame int64, overlays []speed.Overlay) { f(frame, overlays) }

// Counts summarises a run.
type Counts struct {
	Frames     int64
	OutOfOrder int64
	Flushed    int
}

// Runner owns an engine and feeds it from a single source on one goroutine.
type Runner struct {
	src      feed.Source
	engine   *speed.Engine
	sinks    []Sink
	realtime float64 // Replay speed multiplier; 0 processes as fast as possible
	clock    timeutil.Clock

	counts Counts
}

// Option configures a Runner.
type Option func(*Runner)

// WithSinks appends overlay sinks.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithRealtime paces frames by their index at the engine's fps, scaled by
// multiplier (1.0 = real time, 2.0 = twice as fast). Used for file and pcap
// replays feeding live viewers.
func WithRealtime(multiplier float64) Option {
	return func(r *Runner) { r.realtime = multiplier }
}

// WithClock replaces the wall clock used for realtime pacing.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// NewRunner wires src into engine.
func NewRunner(src feed.Source, engine *speed.Engine, opts ...Option) *Runner {
	r := &Runner{src: src, engine: engine, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Counts returns totals so far. Not safe to call concurrently with Run.
func (r *Runner) Counts() Counts { return r.counts }

// Run processes frames until the source ends or ctx is cancelled. At the end
// of the feed every remaining track is flushed so listeners see its summary.
func (r *Runner) Run(ctx context.Context) error {
	fps := r.engine.Config().FPS
	var (
		startWall  time.Time
		startFrame int64
	)

	for {
		f, err := r.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			r.counts.Flushed = r.engine.Flush()
			monitoring.Logf("[pipeline] feed ended after %d frames (%d out of order, %d tracks flushed)",
				r.counts.Frames, r.counts.OutOfOrder, r.counts.Flushed)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		index := f.Index(fps)
		if r.realtime > 0 {
			if startWall.IsZero() {
				startWall, startFrame = r.clock.Now(), index
			}
			offset := time.Duration(float64(index-startFrame) / fps / r.realtime * float64(time.Second))
			if err := r.sleepUntil(ctx, startWall.Add(offset)); err != nil {
				return err
			}
		}

		overlays, err := r.engine.ProcessFrame(index, f.EngineDetections())
		if errors.Is(err, speed.ErrFrameOutOfOrder) {
			r.counts.OutOfOrder++
			monitoring.Logf("[pipeline] skipping frame: %v", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("process frame %d: %w", index, err)
		}
		r.counts.Frames++

		for _, s := range r.sinks {
			s.PublishOverlays(index, overlays)
		}
	}
}

func (r *Runner) sleepUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(r.clock.Now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := r.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
