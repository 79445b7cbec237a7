package evaluator

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Accuracy metric keys.
const (
	KeyMAE   = "mae"
	KeyRMSE  = "rmse"
	KeyMAPE  = "mape"
	KeySMAPE = "smape"
	KeyMdAE  = "md_ae"
	KeyR2    = "r2"
	KeyNRMSE = "nrmse"
	KeyWAPE  = "wape"
)

// Reliability metric keys.
const (
	KeyMBE           = "mbe"
	KeyPBias         = "pbias"
	KeyErrorVariance = "error_variance"
)

// ComputeAccuracy returns the absolute and relative error statistics of
// predicted against actual. Slices must be equal length.
func ComputeAccuracy(actual, predicted []float64) map[string]float64 {
	return map[string]float64{
		KeyMAE:   MAE(actual, predicted),
		KeyRMSE:  RMSE(actual, predicted),
		KeyMAPE:  MAPE(actual, predicted),
		KeySMAPE: SMAPE(actual, predicted),
		KeyMdAE:  MedianAE(actual, predicted),
		KeyR2:    R2(actual, predicted),
		KeyNRMSE: NRMSE(actual, predicted),
		KeyWAPE:  WAPE(actual, predicted),
	}
}

// ComputeReliability returns the signed-bias statistics of predicted against actual.
func ComputeReliability(actual, predicted []float64) map[string]float64 {
	return map[string]float64{
		KeyMBE:           MBE(actual, predicted),
		KeyPBias:         PBias(actual, predicted),
		KeyErrorVariance: ErrorVariance(actual, predicted),
	}
}

// MAE is the mean absolute error. Empty input yields the sentinel.
func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return Sentinel()
	}
	return stat.Mean(absErrors(actual, predicted), nil)
}

// RMSE is the root mean squared error.
func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return Sentinel()
	}
	var sumSq float64
	for i := range actual {
		e := actual[i] - predicted[i]
		sumSq += e * e
	}
	return math.Sqrt(sumSq / float64(len(actual)))
}

// MAPE is the mean absolute percentage error over points with a non-zero actual.
func MAPE(actual, predicted []float64) float64 {
	var sum float64
	var n int
	for i, a := range actual {
		if a == 0 {
			continue
		}
		sum += math.Abs((a - predicted[i]) / a)
		n++
	}
	if n == 0 {
		return Sentinel()
	}
	return sum / float64(n) * 100
}

// SMAPE is the symmetric MAPE over points where |actual|+|predicted| is non-zero.
func SMAPE(actual, predicted []float64) float64 {
	var sum float64
	var n int
	for i, a := range actual {
		denom := math.Abs(a) + math.Abs(predicted[i])
		if denom == 0 {
			continue
		}
		sum += 2 * math.Abs(a-predicted[i]) / denom
		n++
	}
	if n == 0 {
		return Sentinel()
	}
	return sum / float64(n) * 100
}

// MedianAE is the median absolute error.
func MedianAE(actual, predicted []float64) float64 {
	return Quantile(absErrors(actual, predicted), 0.5)
}

// R2 is the coefficient of determination against the mean of actual. It is
// the sentinel when fewer than two points are given or actual has no variance.
func R2(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return Sentinel()
	}
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if !finite(r2) {
		return Sentinel()
	}
	return r2
}

// NRMSE is RMSE normalised by the range of actual.
func NRMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return Sentinel()
	}
	denom := floats.Max(actual) - floats.Min(actual)
	if denom == 0 {
		return Sentinel()
	}
	return RMSE(actual, predicted) / denom
}

// WAPE is the sum of absolute errors over the sum of absolute actuals, in percent.
func WAPE(actual, predicted []float64) float64 {
	var denom float64
	for _, a := range actual {
		denom += math.Abs(a)
	}
	if denom == 0 {
		return Sentinel()
	}
	return floats.Sum(absErrors(actual, predicted)) / denom * 100
}

// MBE is the mean bias error; positive values mean systematic over-forecast.
func MBE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return Sentinel()
	}
	return stat.Mean(signedErrors(actual, predicted), nil)
}

// PBias is the percent bias of predicted relative to the sum of actual.
func PBias(actual, predicted []float64) float64 {
	denom := floats.Sum(actual)
	if denom == 0 {
		return Sentinel()
	}
	return 100 * floats.Sum(signedErrors(actual, predicted)) / denom
}

// ErrorVariance is the population variance of predicted-actual.
func ErrorVariance(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return Sentinel()
	}
	return stat.PopVariance(signedErrors(actual, predicted), nil)
}

func absErrors(actual, predicted []float64) []float64 {
	out := make([]float64, len(actual))
	for i := range actual {
		out[i] = math.Abs(actual[i] - predicted[i])
	}
	return out
}

// signedErrors returns predicted-actual.
func signedErrors(actual, predicted []float64) []float64 {
	out := make([]float64, len(actual))
	for i := range actual {
		out[i] = predicted[i] - actual[i]
	}
	return out
}
