// Package stats provides the statistics used to summarize report series.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Percentile calculates the p-th percentile of a sorted slice.
// The slice must already be sorted in ascending order.
// Returns 0 if the slice is empty.
func Percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Trend holds a least-squares fit of a series against its sample index.
type Trend struct {
	Slope       float64 `json:"slope"` // change per sample
	Intercept   float64 `json:"intercept"`
	RSquared    float64 `json:"r_squared"`
	Correlation float64 `json:"correlation"`
}

// ComputeTrend fits ys against 0, 1, 2, ...
// Returns the zero Trend if fewer than 2 values are provided. A constant
// series is fitted exactly by a flat line: RSquared 1, Correlation 0.
func ComputeTrend(ys []float64) Trend {
	n := len(ys)
	if n < 2 {
		return Trend{}
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}

	if stat.Variance(ys, nil) == 0 {
		return Trend{Intercept: ys[0], RSquared: 1}
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	return Trend{
		Slope:       finite(slope),
		Intercept:   finite(intercept),
		RSquared:    finite(stat.RSquared(xs, ys, nil, intercept, slope)),
		Correlation: finite(stat.Correlation(xs, ys, nil)),
	}
}

// finite maps NaN and infinities to 0 so trends always encode as JSON.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
