package evaluator

import "math"

// DriftStatus is the categorical comparison of current MAPE against a baseline.
type DriftStatus string

const (
	DriftUnknown  DriftStatus = "unknown"
	DriftStable   DriftStatus = "stable"
	DriftWarning  DriftStatus = "warning"
	DriftDrifting DriftStatus = "drifting"
)

// Default ratio thresholds of current MAPE over baseline MAPE.
const (
	DefaultWarningRatio = 1.2
	DefaultDriftRatio   = 1.5
)

// Rank orders statuses along stable, warning, drifting. Unknown ranks lowest.
func (s DriftStatus) Rank() int {
	switch s {
	case DriftStable:
		return 1
	case DriftWarning:
		return 2
	case DriftDrifting:
		return 3
	default:
		return 0
	}
}

// ClassifyDrift compares currentMAPE to baselineMAPE. A nil or NaN baseline
// yields DriftUnknown. Each call is independent; nothing is remembered.
func ClassifyDrift(currentMAPE float64, baselineMAPE *float64, warningRatio, driftRatio float64) DriftStatus {
	if baselineMAPE == nil || math.IsNaN(*baselineMAPE) {
		return DriftUnknown
	}
	baseline := *baselineMAPE
	switch {
	case currentMAPE <= baseline*warningRatio:
		return DriftStable
	case currentMAPE <= baseline*driftRatio:
		return DriftWarning
	default:
		return DriftDrifting
	}
}
