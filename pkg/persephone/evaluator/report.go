package evaluator

import (
	"math"
	"strconv"
)

// Section names of an evaluation report.
const (
	SectionAccuracy    = "accuracy"
	SectionReliability = "reliability"
	SectionEfficiency  = "efficiency"
	SectionHorizon     = "horizon"
	SectionDrift       = "drift"
	SectionBusiness    = "business"
)

// DriftStatusKey is the single key of the drift section.
const DriftStatusKey = "prediction_drift_status"

// Sentinel returns the internal marker for a metric that could not be computed.
// It is converted to an absent value only by Sanitize.
func Sentinel() float64 {
	return math.NaN()
}

// IsSentinel reports whether v marks an undefined metric.
func IsSentinel(v float64) bool {
	return math.IsNaN(v)
}

// RuntimeStats carries timing and size figures measured by the training and
// inference caller. Nil fields are unset.
type RuntimeStats struct {
	TrainingTimeSec  *float64 `json:"training_time_sec,omitempty" yaml:"training_time_sec,omitempty"`
	InferenceTimeSec *float64 `json:"inference_time_sec,omitempty" yaml:"inference_time_sec,omitempty"`
	ModelSizeMB      *float64 `json:"model_size_mb,omitempty" yaml:"model_size_mb,omitempty"`
}

// Input is one evaluation call: an index-aligned actual/predicted pair plus
// optional side-channel metadata. Nil slices and pointers mean "not supplied".
type Input struct {
	Actual    []float64 `json:"actual" yaml:"actual"`
	Predicted []float64 `json:"predicted" yaml:"predicted"`

	// Horizons[i] is the lead-time step that produced point i.
	Horizons []int `json:"horizons,omitempty" yaml:"horizons,omitempty"`
	// PeakFlags marks high-demand points explicitly; when nil the peak set is inferred.
	PeakFlags []bool `json:"peak_flags,omitempty" yaml:"peak_flags,omitempty"`
	// Weights for the energy-weighted MAPE; defaults to Actual.
	Weights []float64 `json:"weights,omitempty" yaml:"weights,omitempty"`

	Runtime      *RuntimeStats `json:"runtime_stats,omitempty" yaml:"runtime_stats,omitempty"`
	BaselineMAPE *float64      `json:"baseline_mape,omitempty" yaml:"baseline_mape,omitempty"`
}

// Report is the six-section evaluation result. Numeric sections may hold
// sentinel values until the report is sanitized.
type Report struct {
	Accuracy    map[string]float64 `json:"accuracy"`
	Reliability map[string]float64 `json:"reliability"`
	Efficiency  map[string]float64 `json:"efficiency"`
	Horizon     map[string]float64 `json:"horizon"`
	Drift       map[string]string  `json:"drift"`
	Business    map[string]float64 `json:"business"`
}

// DriftStatus returns the categorical drift judgement stored in the report.
func (r *Report) DriftStatus() DriftStatus {
	return DriftStatus(r.Drift[DriftStatusKey])
}

// HorizonMAE returns the MAE bucket for step h, or the sentinel when h is not
// a reported step.
func (r *Report) HorizonMAE(h int) float64 {
	v, ok := r.Horizon[strconv.Itoa(h)]
	if !ok {
		return Sentinel()
	}
	return v
}

// Tree returns the report as a nested generic map, sections keyed by name.
func (r *Report) Tree() map[string]any {
	return map[string]any{
		SectionAccuracy:    r.Accuracy,
		SectionReliability: r.Reliability,
		SectionEfficiency:  r.Efficiency,
		SectionHorizon:     r.Horizon,
		SectionDrift:       r.Drift,
		SectionBusiness:    r.Business,
	}
}

// Sanitized returns the report tree with every non-finite number replaced by
// nil, ready for JSON encoding.
func (r *Report) Sanitized() map[string]any {
	out, _ := Sanitize(r.Tree()).(map[string]any)
	return out
}
