// Package indicators computes rolling-window indicators over full price
// histories. Every function returns a slice aligned with its input: indexes
// inside the warm-up window hold NaN.
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// SMA calculates the simple moving average over window.
func SMA(values []float64, window int) []float64 {
	if window < 1 {
		return nanSlice(len(values))
	}
	return compute(values, trend.NewSmaWithPeriod[float64](window).Compute)
}

// EMA calculates the exponential moving average over window. The first
// defined value is seeded from the SMA of the first window values.
func EMA(values []float64, window int) []float64 {
	if window < 1 {
		return nanSlice(len(values))
	}
	return compute(values, trend.NewEmaWithPeriod[float64](window).Compute)
}

// RollingMin calculates the lowest value of each trailing window.
func RollingMin(values []float64, window int) []float64 {
	if window < 1 {
		return nanSlice(len(values))
	}
	return compute(values, trend.NewMovingMinWithPeriod[float64](window).Compute)
}

// RollingMax calculates the highest value of each trailing window.
func RollingMax(values []float64, window int) []float64 {
	if window < 1 {
		return nanSlice(len(values))
	}
	return compute(values, trend.NewMovingMaxWithPeriod[float64](window).Compute)
}

// MovingAverage dispatches on kind ("sma" or "ema"). Unknown kinds fall back
// to SMA.
func MovingAverage(kind string, values []float64, window int) []float64 {
	if kind == "ema" {
		return EMA(values, window)
	}
	return SMA(values, window)
}

// Crossover reports whether a crossed above b between index i-1 and i.
// Undefined values never cross.
func Crossover(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	return a[i-1] < b[i-1] && a[i] > b[i]
}

// Defined reports whether none of the values is NaN.
func Defined(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// compute runs a cinar channel indicator and right-aligns its output with
// the input, padding the idle period with NaN.
func compute(values []float64, fn func(<-chan float64) <-chan float64) []float64 {
	out := nanSlice(len(values))
	if len(values) == 0 {
		return out
	}

	computed := helper.ChanToSlice(fn(helper.SliceToChan(values)))
	if len(computed) > len(values) {
		computed = computed[len(computed)-len(values):]
	}
	copy(out[len(values)-len(computed):], computed)

	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
