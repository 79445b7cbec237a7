package evaluator

import "math"

// Business metric keys.
const (
	KeyPeakDemandMAE      = "peak_demand_mae"
	KeyEnergyWeightedMAPE = "energy_weighted_mape"
)

// PeakQuantile is the quantile of actual above which points count as peak
// demand when no explicit flags are supplied.
const PeakQuantile = 0.9

// ComputeBusiness returns the peak-demand MAE and the energy-weighted MAPE.
// peakFlags and weights may be nil.
func ComputeBusiness(actual, predicted []float64, peakFlags []bool, weights []float64) map[string]float64 {
	return map[string]float64{
		KeyPeakDemandMAE:      PeakDemandMAE(actual, predicted, peakFlags),
		KeyEnergyWeightedMAPE: EnergyWeightedMAPE(actual, predicted, weights),
	}
}

// PeakMask selects the peak set: the flagged points when flags are given,
// otherwise every point whose actual is at or above the PeakQuantile of actual.
func PeakMask(actual []float64, peakFlags []bool) []bool {
	if peakFlags != nil {
		return peakFlags
	}
	mask := make([]bool, len(actual))
	if len(actual) == 0 {
		return mask
	}
	threshold := Quantile(actual, PeakQuantile)
	for i, a := range actual {
		mask[i] = a >= threshold
	}
	return mask
}

// PeakDemandMAE is the MAE restricted to the peak set.
func PeakDemandMAE(actual, predicted []float64, peakFlags []bool) float64 {
	mask := PeakMask(actual, peakFlags)
	var sum float64
	var n int
	for i, peak := range mask {
		if !peak {
			continue
		}
		sum += math.Abs(actual[i] - predicted[i])
		n++
	}
	if n == 0 {
		return Sentinel()
	}
	return sum / float64(n)
}

// EnergyWeightedMAPE is a weight-normalised MAPE that emphasises high-demand
// periods. Weights default to actual. Only points with a non-zero actual and a
// positive weight contribute.
func EnergyWeightedMAPE(actual, predicted []float64, weights []float64) float64 {
	if weights == nil {
		weights = actual
	}
	var num, den float64
	for i, a := range actual {
		w := weights[i]
		if a == 0 || !(w > 0) {
			continue
		}
		num += w * math.Abs((a-predicted[i])/a)
		den += w
	}
	if den == 0 {
		return Sentinel()
	}
	return 100 * num / den
}
