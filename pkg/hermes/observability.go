package hermes

import "context"

// Label is a metric dimension.
type Label struct {
	Key   string
	Value string
}

// Metrics is the sink for service counters, histograms and gauges.
type Metrics interface {
	IncCounter(name string, value float64, labels ...Label)
	ObserveHistogram(name string, value float64, labels ...Label)
	SetGauge(name string, value float64, labels ...Label)
}

// Logger is the structured logger handed to pipeline and API components.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, fields map[string]any)
}

// Metric names emitted by the service.
const (
	MetricEvaluationsTotal  = "stlf_evaluations_total"
	MetricEvaluationSeconds = "stlf_evaluation_seconds"
	MetricPipelineRunsTotal = "stlf_pipeline_runs_total"
	MetricPipelineStageSecs = "stlf_pipeline_stage_seconds"
	MetricLastRunMAPE       = "stlf_last_run_mape"
	MetricHTTPRequestsTotal = "stlf_http_requests_total"
	MetricRateLimitedTotal  = "stlf_rate_limited_total"
)
