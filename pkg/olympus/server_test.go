package olympus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gridcast/stlf/pkg/charon"
	"github.com/gridcast/stlf/pkg/domain"
	"github.com/gridcast/stlf/pkg/erebus"
	"github.com/gridcast/stlf/pkg/hades"
	"github.com/gridcast/stlf/pkg/hermes"
	"github.com/gridcast/stlf/pkg/persephone"
	"github.com/gridcast/stlf/pkg/persephone/evaluator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server   *Server
	registry *hades.MemoryRegistry
	metrics  *hermes.PrometheusMetrics
	http     *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*Server)) *testEnv {
	t.Helper()
	store, err := erebus.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	registry := hades.NewMemoryRegistry()
	metrics := hermes.NewPrometheusMetrics()

	pipeline, err := persephone.NewPipeline(store, registry, persephone.DefaultPipelineConfig(), nil, metrics)
	require.NoError(t, err)
	engine, err := evaluator.NewEngine(evaluator.DefaultOptions())
	require.NoError(t, err)

	s := &Server{
		Pipeline:       pipeline,
		Engine:         engine,
		Store:          store,
		Registry:       registry,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	}
	if mutate != nil {
		mutate(s)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{server: s, registry: registry, metrics: metrics, http: srv}
}

func (e *testEnv) url(path string) string {
	return e.http.URL + path
}

func syntheticCSV(hours int) string {
	var b strings.Builder
	b.WriteString("timestamp,load\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < hours; i++ {
		load := 500 + 20*math.Sin(2*math.Pi*float64(i%24)/24) + float64((i*31)%7) - 3
		fmt.Fprintf(&b, "%s,%.2f\n", start.Add(time.Duration(i)*time.Hour).Format("2006-01-02 15:04:05"), load)
	}
	return b.String()
}

func (e *testEnv) upload(t *testing.T, content string) UploadResponse {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "load.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.url("/upload"), mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestEvaluate(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{
		"actual": [100, 110, 120, 130, 140, 150],
		"predicted": [98, 112, 118, 135, 138, 155],
		"horizons": [1, 1, 2, 2, 3, 3],
		"runtime_stats": {"training_time_sec": 1.5},
		"baseline_mape": 3.0
	}`
	resp, err := http.Post(env.url("/evaluate"), "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	report := decode[map[string]map[string]any](t, resp)
	assert.InDelta(t, 3.5, report["accuracy"]["mae"], 1e-9)
	assert.Equal(t, "stable", report["drift"]["prediction_drift_status"])
	assert.Equal(t, 1.5, report["efficiency"]["training_time_sec"])
	assert.Nil(t, report["efficiency"]["model_size_mb"])
	assert.Contains(t, report["horizon"], "24")
	assert.Nil(t, report["horizon"]["4"])
}

func TestEvaluate_DegenerateMetricsAreNull(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.url("/evaluate"), "application/json",
		strings.NewReader(`{"actual":[0,0,0],"predicted":[1,1,1]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decode[map[string]map[string]any](t, resp)
	assert.Contains(t, report["accuracy"], "mape")
	assert.Nil(t, report["accuracy"]["mape"])
	assert.Equal(t, 1.0, report["accuracy"]["mae"])
	assert.Equal(t, "unknown", report["drift"]["prediction_drift_status"])
}

func TestEvaluate_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"actual":`},
		{"empty series", `{"actual":[],"predicted":[]}`},
		{"length mismatch", `{"actual":[1,2],"predicted":[1]}`},
		{"horizon mismatch", `{"actual":[1,2],"predicted":[1,2],"horizons":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(env.url("/evaluate"), "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			out := decode[map[string]string](t, resp)
			assert.NotEmpty(t, out["error"])
		})
	}

	resp, err := http.Get(env.url("/evaluate"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEvaluate_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(s *Server) { s.MaxEvaluateBytes = 1024 })

	// A well-formed array that never closes keeps the decoder reading
	body := `{"actual":[` + strings.Repeat("1,", 4096)
	resp, err := http.Post(env.url("/evaluate"), "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	out := decode[map[string]string](t, resp)
	assert.Contains(t, out["error"], "1024 bytes")

	// Bodies under the cap still evaluate
	resp, err = http.Post(env.url("/evaluate"), "application/json",
		strings.NewReader(`{"actual":[1,2,3],"predicted":[1,2,4]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun_SpanTooLarge(t *testing.T) {
	env := newTestEnv(t, nil)
	up := env.upload(t, "timestamp,load\n1900-01-01 00:00:00,10\n2150-01-01 00:00:00,12\n")

	resp, err := http.Post(env.url("/run?upload_id="+string(up.UploadID)), "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	out := decode[map[string]string](t, resp)
	assert.Contains(t, out["error"], "time span too large")
}

func TestUploadRunDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	// Nothing to download yet
	resp, err := http.Get(env.url("/download"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	up := env.upload(t, syntheticCSV(30*24))
	assert.NotEmpty(t, up.UploadID)
	assert.Equal(t, "File uploaded successfully", up.Message)

	resp, err = http.Post(env.url("/run?upload_id="+string(up.UploadID)), "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decode[RunResponse](t, resp)
	assert.Equal(t, "Pipeline completed", run.Message)
	assert.Equal(t, "/download?run_id="+string(run.RunID), run.DownloadURL)
	assert.Contains(t, run.Report, "accuracy")

	resp, err = http.Get(env.url(run.DownloadURL))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "forecast_output.csv")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	header, _, _ := strings.Cut(string(data), "\n")
	assert.True(t, strings.HasSuffix(header, ",forecast"), header)

	// Latest run is the default
	resp, err = http.Get(env.url("/download"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.url("/runs"))
	require.NoError(t, err)
	runs := decode[[]domain.TrainingRun](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].ID)

	resp, err = http.Get(env.url("/runs/" + string(run.RunID)))
	require.NoError(t, err)
	got := decode[domain.TrainingRun](t, resp)
	assert.Equal(t, domain.RunStatusSucceeded, got.Status)
	assert.Equal(t, up.UploadID, got.UploadID)
}

func TestRun_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.url("/run"), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.upload(t, "date,value\n2024-01-01,1\n")
	resp, err = http.Post(env.url("/run"), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.upload(t, syntheticCSV(24))
	resp, err = http.Post(env.url("/run"), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = http.Get(env.url("/runs/does-not-exist"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(env.url("/runs?limit=-1"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_MissingFile(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := http.Post(env.url("/upload"), "text/plain", strings.NewReader("timestamp,load"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunStream(t *testing.T) {
	env := newTestEnv(t, nil)
	env.upload(t, syntheticCSV(30*24))

	wsURL := "ws" + strings.TrimPrefix(env.url("/run/stream"), "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var stages []domain.Stage
	var final StreamMessage
	for {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != StreamStage {
			final = msg
			break
		}
		stages = append(stages, msg.Event.Stage)
	}

	assert.Equal(t, domain.StageLoad, stages[0])
	assert.Equal(t, domain.StageCompleted, stages[len(stages)-1])
	require.Equal(t, StreamResult, final.Type)
	require.NotNil(t, final.Result)
	assert.NotEmpty(t, final.Result.RunID)
}

func TestRunStream_Error(t *testing.T) {
	env := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.url("/run/stream?upload_id=nope"), "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamError, msg.Type)
	assert.Equal(t, http.StatusNotFound, msg.Status)
}

func TestAuthAndRateLimit(t *testing.T) {
	limiter := charon.NewTokenBucketLimiter(0.001, 2)
	t.Cleanup(func() { limiter.Close() })
	env := newTestEnv(t, func(s *Server) {
		s.APIKey = "secret"
		s.Limiter = limiter
	})

	// Health is open
	resp, err := http.Get(env.url("/healthz"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, env.url("/runs"), nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Burst of two is spent; the third request is throttled
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.url("/healthz"))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(env.url("/metrics"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `stlf_http_requests_total{code="200",route="GET /healthz"} 1`)
}

func TestRegistryFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.Registry = failingRegistry{env.registry}
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	out := decode[map[string]string](t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", out["error"])
}

type failingRegistry struct {
	hades.RunRegistry
}

func (failingRegistry) ListRuns(ctx context.Context, limit int) ([]domain.TrainingRun, error) {
	return nil, fmt.Errorf("redis: connection refused")
}
