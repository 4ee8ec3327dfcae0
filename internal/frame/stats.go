package frame

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// finite returns the non-NaN values of xs.
func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// NanMean is the mean of the defined values, NaN when there are none.
func NanMean(xs []float64) float64 {
	v := finite(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// NanSum is the sum of the defined values, zero when there are none.
func NanSum(xs []float64) float64 {
	return floats.Sum(finite(xs))
}

// NanMin is the smallest defined value, NaN when there are none.
func NanMin(xs []float64) float64 {
	v := finite(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Min(v)
}

// NanMax is the largest defined value, NaN when there are none.
func NanMax(xs []float64) float64 {
	v := finite(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Max(v)
}

// NanStdDev is the sample standard deviation of the defined values. It is
// NaN for fewer than two values.
func NanStdDev(xs []float64) float64 {
	v := finite(xs)
	if len(v) < 2 {
		return math.NaN()
	}
	return stat.StdDev(v, nil)
}

// Quantile returns the q-th quantile of the defined values, interpolating
// linearly between the closest ranks at position (n-1)*q. It is NaN when
// there are no defined values.
func Quantile(xs []float64, q float64) float64 {
	v := finite(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	pos := float64(len(v)-1) * math.Min(math.Max(q, 0), 1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return v[lo] + (v[hi]-v[lo])*(pos-float64(lo))
}
