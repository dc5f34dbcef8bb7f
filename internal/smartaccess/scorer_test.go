package smartaccess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineWithinBounds(t *testing.T) {
	// Magnitudes cancel out; only direction matters.
	got := Cosine([]float32{1e6, 1e6}, []float32{1e-6, 1e-6})
	assert.LessOrEqual(t, got, 1.0)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestScoreInsufficientBaselineNeverFlags(t *testing.T) {
	baseline := Baseline{DistinctDays: 29, Centroid: []float32{1, 0}, Size: 29}

	// An adversarial vector against an immature baseline stays unflagged.
	result := Score([]float32{-1, 0}, baseline, 0.85, 30)
	assert.Nil(t, result.Score)
	assert.False(t, result.Flagged)
}

func TestScoreEmptyBaselineNeverFlags(t *testing.T) {
	result := Score([]float32{1, 0}, Baseline{}, 0.85, 30)
	assert.Nil(t, result.Score)
	assert.False(t, result.Flagged)
}

func TestScoreReadyBaseline(t *testing.T) {
	baseline := Baseline{DistinctDays: 30, Centroid: []float32{1, 0}, Size: 30}

	tests := []struct {
		name        string
		vector      []float32
		threshold   float64
		wantScore   float64
		wantFlagged bool
	}{
		{name: "similar passes", vector: []float32{1, 0}, threshold: 0.85, wantScore: 1, wantFlagged: false},
		{name: "orthogonal flags", vector: []float32{0, 1}, threshold: 0.85, wantScore: 0, wantFlagged: true},
		{name: "score at threshold passes", vector: []float32{1, 0}, threshold: 1.0, wantScore: 1, wantFlagged: false},
		{name: "permissive threshold", vector: []float32{0, 1}, threshold: -1.0, wantScore: 0, wantFlagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Score(tt.vector, baseline, tt.threshold, 30)
			require.NotNil(t, result.Score)
			assert.InDelta(t, tt.wantScore, *result.Score, 1e-9)
			assert.Equal(t, tt.wantFlagged, result.Flagged)
		})
	}
}

func TestBaselineReady(t *testing.T) {
	tests := []struct {
		name     string
		baseline Baseline
		days     int
		want     bool
	}{
		{name: "enough days", baseline: Baseline{DistinctDays: 30, Size: 40}, days: 30, want: true},
		{name: "one day short", baseline: Baseline{DistinctDays: 29, Size: 40}, days: 30, want: false},
		{name: "days without vectors", baseline: Baseline{DistinctDays: 30, Size: 0}, days: 30, want: false},
		{name: "single day requirement", baseline: Baseline{DistinctDays: 1, Size: 1}, days: 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.baseline.Ready(tt.days))
		})
	}
}
