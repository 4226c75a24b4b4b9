package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of samples a baseline keeps.
const DefaultWindow = 50

// Baseline is a bounded rolling history of one metric.
type Baseline struct {
	window  int
	samples []float64
}

// NewBaseline creates a baseline keeping at most window samples.
// A non-positive window falls back to DefaultWindow.
func NewBaseline(window int) *Baseline {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Baseline{window: window, samples: make([]float64, 0, window)}
}

// Add appends v and trims the oldest samples beyond the window.
func (b *Baseline) Add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	b.samples = append(b.samples, v)
	if over := len(b.samples) - b.window; over > 0 {
		b.samples = append(b.samples[:0], b.samples[over:]...)
	}
}

// Len is the number of samples currently held.
func (b *Baseline) Len() int { return len(b.samples) }

// Mean of the held samples, 0 when empty.
func (b *Baseline) Mean() float64 { return Mean(b.samples) }

// StdDev of the held samples, 0 with fewer than two.
func (b *Baseline) StdDev() float64 { return StdDev(b.samples) }

// Last returns the newest sample.
func (b *Baseline) Last() (float64, bool) {
	if len(b.samples) == 0 {
		return 0, false
	}
	return b.samples[len(b.samples)-1], true
}

// Values returns a copy of the held samples, oldest first.
func (b *Baseline) Values() []float64 {
	out := make([]float64, len(b.samples))
	copy(out, b.samples)
	return out
}

// Set is a keyed collection of baselines sharing one window size.
type Set struct {
	window int
	byKey  map[string]*Baseline
}

func NewSet(window int) *Set {
	return &Set{window: window, byKey: make(map[string]*Baseline)}
}

// Get returns the baseline for key, creating it on first use.
func (s *Set) Get(key string) *Baseline {
	b, ok := s.byKey[key]
	if !ok {
		b = NewBaseline(s.window)
		s.byKey[key] = b
	}
	return b
}

// Keys lists the tracked metric keys.
func (s *Set) Keys() []string {
	out := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		out = append(out, k)
	}
	return out
}

// Reset drops every baseline.
func (s *Set) Reset() { s.byKey = make(map[string]*Baseline) }

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample standard deviation, 0 with fewer than two values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// DeviationPct is the signed percentage deviation of v from base.
// A zero base yields 100 (or -100) for any non-zero v.
func DeviationPct(v, base float64) float64 {
	if base == 0 {
		switch {
		case v > 0:
			return 100
		case v < 0:
			return -100
		default:
			return 0
		}
	}
	return (v - base) / math.Abs(base) * 100
}

// Confidence maps a deviation percentage onto [0.5, 0.95].
func Confidence(deviationPct float64) float64 {
	return math.Min(0.95, 0.5+0.3*math.Abs(deviationPct)/100)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp100 bounds v to the 0-100 score range.
func Clamp100(v float64) float64 { return Clamp(v, 0, 100) }

// Sign returns -1, 0 or 1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Slope is the least-squares slope of ys against xs. It is 0 for fewer than
// two points or when xs has no spread.
func Slope(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) || stat.Variance(xs, nil) == 0 {
		return 0
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return beta
}

// LogReturns computes r_t = ln(p_t / p_{t-1}); non-positive prices yield 0.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// Volatility is the standard deviation of log returns over prices, in percent.
func Volatility(prices []float64) float64 {
	return StdDev(LogReturns(prices)) * 100
}
