package evaluator

// Efficiency metric keys.
const (
	KeyTrainingTimeSec  = "training_time_sec"
	KeyInferenceTimeSec = "inference_time_sec"
	KeyModelSizeMB      = "model_size_mb"
)

// ComputeEfficiency copies the runtime figures into a report section, with
// the sentinel for every figure that was not measured.
func ComputeEfficiency(stats *RuntimeStats) map[string]float64 {
	if stats == nil {
		stats = &RuntimeStats{}
	}
	return map[string]float64{
		KeyTrainingTimeSec:  valueOrSentinel(stats.TrainingTimeSec),
		KeyInferenceTimeSec: valueOrSentinel(stats.InferenceTimeSec),
		KeyModelSizeMB:      valueOrSentinel(stats.ModelSizeMB),
	}
}

func valueOrSentinel(v *float64) float64 {
	if v == nil {
		return Sentinel()
	}
	return *v
}
