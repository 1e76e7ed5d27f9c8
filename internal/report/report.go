// Package report renders persisted speed samples as PNG plots.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/camspeed/internal/db"
	"github.com/banshee-data/camspeed/internal/units"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("no speed samples to plot")

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch

	// DefaultBins is the histogram bin count when Options.Bins is unset.
	DefaultBins = 20

	// maxTrackLines caps the legend of the per-track plot.
	maxTrackLines = 12
)

// Options controls Generate.
type Options struct {
	Title string // Prefix for every plot title
	Bins  int
}

// Generate writes speed_hist.png, speed_scatter.png and track_speeds.png
// for samples into dir and returns the written paths.
func Generate(samples []db.SampleRecord, dir string, opts Options) ([]string, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	plots := []struct {
		name  string
		build func([]db.SampleRecord, Options) (*plot.Plot, error)
	}{
		{"speed_hist.png", SpeedHistogram},
		{"speed_scatter.png", SpeedScatter},
		{"track_speeds.png", TrackSpeeds},
	}

	var written []string
	for _, pl := range plots {
		p, err := pl.build(samples, opts)
		if err != nil {
			return written, fmt.Errorf("%s: %w", pl.name, err)
		}
		path := filepath.Join(dir, pl.name)
		if err := p.Save(plotWidth, plotHeight, path); err != nil {
			return written, fmt.Errorf("save %s: %w", pl.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func newPlot(opts Options, title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	if opts.Title != "" {
		p.Title.Text = opts.Title + " - " + title
	}
	p.X.Label.Text = x
	p.Y.Label.Text = y
	return p
}

// displayUnit picks one unit for a plot; samples from sessions recorded in
// different units are converted to units.Default.
func displayUnit(samples []db.SampleRecord) string {
	list := make([]string, len(samples))
	for i, s := range samples {
		list[i] = s.Unit
	}
	return units.Common(list)
}

func axisLabel(unit string) string {
	return fmt.Sprintf("Speed (%s)", units.Label(unit))
}

// SpeedHistogram bins the raw sample speeds.
func SpeedHistogram(samples []db.SampleRecord, opts Options) (*plot.Plot, error) {
	bins := opts.Bins
	if bins <= 0 {
		bins = DefaultBins
	}
	unit := displayUnit(samples)
	values := make(plotter.Values, len(samples))
	for i, s := range samples {
		values[i] = units.Convert(s.Speed, s.Unit, unit)
	}

	p := newPlot(opts, "Speed distribution", axisLabel(unit), "Samples")
	h, err := plotter.NewHist(values, bins)
	if err != nil {
		return nil, err
	}
	h.FillColor = plotutil.Color(0)
	p.Add(h)
	return p, nil
}

// SpeedScatter plots raw sample speed against the frame the window closed.
func SpeedScatter(samples []db.SampleRecord, opts Options) (*plot.Plot, error) {
	unit := displayUnit(samples)
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: float64(s.CloseFrame), Y: units.Convert(s.Speed, s.Unit, unit)}
	}

	p := newPlot(opts, "Speed samples", "Frame", axisLabel(unit))
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Radius = vg.Points(2)
	sc.GlyphStyle.Color = plotutil.Color(1)
	p.Add(sc, plotter.NewGrid())
	return p, nil
}

// TrackSpeeds draws the smoothed speed of each track over time, one line per
// track. Only the tracks with the most samples are drawn.
func TrackSpeeds(samples []db.SampleRecord, opts Options) (*plot.Plot, error) {
	byTrack := make(map[int64][]db.SampleRecord)
	for _, s := range samples {
		byTrack[s.TrackID] = append(byTrack[s.TrackID], s)
	}
	ids := make([]int64, 0, len(byTrack))
	for id := range byTrack {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(byTrack[ids[i]]) != len(byTrack[ids[j]]) {
			return len(byTrack[ids[i]]) > len(byTrack[ids[j]])
		}
		return ids[i] < ids[j]
	})
	if len(ids) > maxTrackLines {
		ids = ids[:maxTrackLines]
	}

	unit := displayUnit(samples)
	p := newPlot(opts, "Smoothed speed by track", "Frame", axisLabel(unit))
	for i, id := range ids {
		track := byTrack[id]
		sort.Slice(track, func(a, b int) bool { return track[a].CloseFrame < track[b].CloseFrame })

		pts := make(plotter.XYs, len(track))
		for j, s := range track {
			pts[j] = plotter.XY{X: float64(s.CloseFrame), Y: units.Convert(s.Smoothed, s.Unit, unit)}
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		points.GlyphStyle.Color = plotutil.Color(i)
		p.Add(line, points)
		p.Legend.Add(fmt.Sprintf("%d %s", id, track[0].Class), line, points)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
