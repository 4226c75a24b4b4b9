package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaselineTrimsToWindow(t *testing.T) {
	b := NewBaseline(3)
	for i := 1; i <= 5; i++ {
		b.Add(float64(i))
	}
	assert.Equal(t, []float64{3, 4, 5}, b.Values())
	assert.InDelta(t, 4.0, b.Mean(), 1e-9)
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 5.0, last)
}

func TestBaselineIgnoresNaN(t *testing.T) {
	b := NewBaseline(0)
	b.Add(math.NaN())
	b.Add(math.Inf(1))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0.0, b.Mean())
	assert.Equal(t, 0.0, b.StdDev())
}

func TestDeviationAndConfidence(t *testing.T) {
	assert.InDelta(t, 50.0, DeviationPct(150, 100), 1e-9)
	assert.InDelta(t, -50.0, DeviationPct(50, 100), 1e-9)
	assert.Equal(t, 100.0, DeviationPct(3, 0))
	assert.Equal(t, 0.0, DeviationPct(0, 0))

	assert.InDelta(t, 0.65, Confidence(50), 1e-9)
	assert.InDelta(t, 0.95, Confidence(400), 1e-9)
}

func TestSetCreatesOnDemand(t *testing.T) {
	s := NewSet(10)
	s.Get("a").Add(1)
	s.Get("a").Add(3)
	assert.Equal(t, 2, s.Get("a").Len())
	assert.ElementsMatch(t, []string{"a"}, s.Keys())
	s.Reset()
	assert.Empty(t, s.Keys())
}

func TestVolatilityFlatSeries(t *testing.T) {
	assert.Equal(t, 0.0, Volatility([]float64{10, 10, 10, 10}))
	assert.Greater(t, Volatility([]float64{10, 11, 9, 12}), 0.0)
	assert.Nil(t, LogReturns([]float64{1}))
}

func TestSlopeFitsLeastSquares(t *testing.T) {
	assert.InDelta(t, 2.0, Slope([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7}), 1e-9)
	// endpoints alone would give (1-0)/4 = 0.25
	assert.InDelta(t, 0.1, Slope([]float64{0, 1, 2, 3, 4}, []float64{0, 1, 0, 0, 1}), 1e-9)
	assert.Equal(t, 0.0, Slope([]float64{5}, []float64{1}))
	assert.Equal(t, 0.0, Slope([]float64{2, 2, 2}, []float64{1, 4, 9}))
}
