package evaluator

import "strconv"

// DefaultMaxHorizon is the fixed number of horizon buckets in a report.
const DefaultMaxHorizon = 24

// MAEPerHorizon buckets absolute errors by forecast horizon step and returns
// the MAE of each step "1".."maxHorizon". Steps without points, and every
// step when horizons is nil, hold the sentinel. Horizon values outside
// [1, maxHorizon] are ignored.
func MAEPerHorizon(actual, predicted []float64, horizons []int, maxHorizon int) map[string]float64 {
	if maxHorizon <= 0 {
		maxHorizon = DefaultMaxHorizon
	}

	sums := make([]float64, maxHorizon+1)
	counts := make([]int, maxHorizon+1)
	if horizons != nil {
		for i, h := range horizons {
			if h < 1 || h > maxHorizon {
				continue
			}
			e := actual[i] - predicted[i]
			if e < 0 {
				e = -e
			}
			sums[h] += e
			counts[h]++
		}
	}

	result := make(map[string]float64, maxHorizon)
	for h := 1; h <= maxHorizon; h++ {
		if counts[h] == 0 {
			result[strconv.Itoa(h)] = Sentinel()
			continue
		}
		result[strconv.Itoa(h)] = sums[h] / float64(counts[h])
	}
	return result
}
