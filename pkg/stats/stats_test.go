package stats

import (
	"encoding/json"
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      int
		want   float64
	}{
		{"empty", nil, 50, 0},
		{"single", []float64{4}, 90, 4},
		{"median", []float64{1, 2, 3, 4, 5}, 50, 3},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 90, 10},
		{"p100 clamps", []float64{1, 2}, 100, 2},
		{"p0", []float64{1, 2, 3}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentile(tt.sorted, tt.p); got != tt.want {
				t.Errorf("Percentile(%v, %d) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeTrend(t *testing.T) {
	tests := []struct {
		name      string
		ys        []float64
		wantSlope float64
		wantCorr  float64
		rSqMin    float64
	}{
		{name: "empty"},
		{name: "single sample", ys: []float64{1200}},
		{
			name:      "growing loc",
			ys:        []float64{1000, 1200, 1400, 1600},
			wantSlope: 200,
			wantCorr:  1,
			rSqMin:    0.99,
		},
		{
			name:      "shrinking debt",
			ys:        []float64{80, 60},
			wantSlope: -20,
			wantCorr:  -1,
			rSqMin:    0.99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTrend(tt.ys)
			if math.Abs(got.Slope-tt.wantSlope) > 0.01 {
				t.Errorf("Slope = %v, want %v", got.Slope, tt.wantSlope)
			}
			if math.Abs(got.Correlation-tt.wantCorr) > 0.01 {
				t.Errorf("Correlation = %v, want %v", got.Correlation, tt.wantCorr)
			}
			if got.RSquared < tt.rSqMin {
				t.Errorf("RSquared = %v, want >= %v", got.RSquared, tt.rSqMin)
			}
		})
	}
}

func TestComputeTrend_Constant(t *testing.T) {
	for _, ys := range [][]float64{{5, 5}, {0, 0, 0, 0}} {
		got := ComputeTrend(ys)
		want := Trend{Intercept: ys[0], RSquared: 1}
		if got != want {
			t.Errorf("ComputeTrend(%v) = %+v, want %+v", ys, got, want)
		}
		if _, err := json.Marshal(got); err != nil {
			t.Errorf("trend of %v should encode as JSON: %v", ys, err)
		}
	}
}

func TestComputeTrend_Noisy(t *testing.T) {
	got := ComputeTrend([]float64{10, 30, 20, 40, 30})
	if got.Slope <= 0 {
		t.Errorf("Slope = %v, want positive", got.Slope)
	}
	if got.RSquared <= 0 || got.RSquared >= 1 {
		t.Errorf("RSquared = %v, want in (0, 1)", got.RSquared)
	}
}
