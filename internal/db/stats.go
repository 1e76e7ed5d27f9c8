package db

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SpeedPercentiles returns the empirical 50th, 85th and 95th percentiles of
// values. The input is not modified.
func SpeedPercentiles(values []float64) (p50, p85, p95 float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p85 = stat.Quantile(0.85, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return
}

// speedBucket places a speed in km/h into a coarse reporting band.
func speedBucket(kmh float64) string {
	switch {
	case kmh < 20:
		return "0-20"
	case kmh < 30:
		return "20-30"
	case kmh < 40:
		return "30-40"
	case kmh < 50:
		return "40-50"
	default:
		return "50+"
	}
}
