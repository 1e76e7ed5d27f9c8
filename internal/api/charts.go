package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/camspeed/internal/db"
	"github.com/banshee-data/camspeed/internal/httputil"
	"github.com/banshee-data/camspeed/internal/units"
)

// bucketOrder is the display order of db.SpeedSummary buckets.
var bucketOrder = []string{"0-20", "20-30", "30-40", "40-50", "50+"}

// speedCharts renders an HTML page with a km/h band histogram and a scatter
// of sample speed against close frame.
func (s *Server) speedCharts(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 2000, maxLimit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := s.session(r)

	summary, err := s.db.GetSpeedSummary(sessionID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	samples, err := s.db.ListSamples(db.SampleFilter{SessionID: sessionID, Limit: limit})
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	page := components.NewPage()
	page.PageTitle = "Speed samples"
	page.AddCharts(bucketChart(summary), scatterChart(samples, summary.Unit))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func bucketChart(summary *db.SpeedSummary) *charts.Bar {
	data := make([]opts.BarData, 0, len(bucketOrder))
	for _, b := range bucketOrder {
		data = append(data, opts.BarData{Value: summary.SpeedBuckets[b]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Speed distribution",
			Subtitle: fmt.Sprintf("samples=%d p50=%.1f p85=%.1f max=%.1f %s", summary.Count, summary.P50Speed, summary.P85Speed, summary.MaxSpeed, units.Label(summary.Unit)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "km/h"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "samples"}),
	)
	bar.SetXAxis(bucketOrder).AddSeries("samples", data)
	return bar
}

func scatterChart(samples []db.SampleRecord, unit string) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(samples))
	for _, sm := range samples {
		data = append(data, opts.ScatterData{Value: []interface{}{sm.CloseFrame, sm.Speed, sm.TrackID}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Samples", Subtitle: fmt.Sprintf("points=%d", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: units.Label(unit)}),
	)
	scatter.AddSeries("speed", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}
