package evaluator

import (
	"math"
	"slices"
)

// Quantile returns the q-th quantile of values using linear interpolation
// between the two closest ranks at position (n-1)*q. This is the default
// convention of numpy and R type 7. The input is not modified; empty input or
// q outside [0, 1] yields the sentinel.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 || q < 0 || q > 1 || math.IsNaN(q) {
		return Sentinel()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	pos := float64(len(sorted)-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
