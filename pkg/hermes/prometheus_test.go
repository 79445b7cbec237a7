package hermes

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics()

	// Test Counter
	m.IncCounter("test_counter", 1, Label{Key: "tag", Value: "A"})
	m.IncCounter("test_counter", 2, Label{Key: "tag", Value: "A"})

	// Test Histogram
	m.ObserveHistogram("test_histogram", 0.5, Label{Key: "tag", Value: "B"})

	// Test Gauge
	m.SetGauge("test_gauge", 10, Label{Key: "tag", Value: "C"})
	m.SetGauge("test_gauge", 20, Label{Key: "tag", Value: "C"})

	assert.Contains(t, m.counters, "test_counter")
	assert.Contains(t, m.histograms, "test_histogram")
	assert.Contains(t, m.gauges, "test_gauge")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["test_counter"])
	assert.Equal(t, 20.0, values["test_gauge"])
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	m := NewPrometheusMetrics()
	m.IncCounter(MetricEvaluationsTotal, 1, Label{Key: "status", Value: "ok"})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `stlf_evaluations_total{status="ok"} 1`)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogAdapter(NewLogger("debug", "json", &buf))

	logger.Info(context.Background(), "pipeline stage", map[string]any{"stage": "load", "rows": 12})
	logger.Warn(context.Background(), "slow stage", nil)
	logger.Error(context.Background(), "stage failed", map[string]any{"error": "boom"})

	out := buf.String()
	assert.Contains(t, out, `"msg":"pipeline stage"`)
	assert.Contains(t, out, `"stage":"load"`)
	assert.Contains(t, out, `"rows":12`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("warning").String())
	assert.Equal(t, "ERROR", ParseLevel("ERROR").String())
	assert.Equal(t, "INFO", ParseLevel("nonsense").String())
}
