package olympus

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gridcast/stlf/pkg/charon"
	"github.com/gridcast/stlf/pkg/erebus"
	"github.com/gridcast/stlf/pkg/hades"
	"github.com/gridcast/stlf/pkg/hermes"
	"github.com/gridcast/stlf/pkg/persephone"
	"github.com/gridcast/stlf/pkg/persephone/evaluator"
)

// DefaultMaxUploadBytes caps the size of an uploaded CSV.
const DefaultMaxUploadBytes = 64 << 20

// DefaultMaxEvaluateBytes caps the JSON body of an evaluation request.
const DefaultMaxEvaluateBytes = 8 << 20

// Server is Olympus: the HTTP front door to uploads, training runs and
// standalone evaluation.
type Server struct {
	Pipeline *persephone.Pipeline
	Engine   *evaluator.Engine
	Store    erebus.Store
	Registry hades.RunRegistry
	Logger   *slog.Logger
	Metrics  hermes.Metrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Limiter        charon.RateLimiter
	// Clients resolves rate-limit identities; nil means the connection peer.
	Clients          *charon.ClientResolver
	APIKey           string
	MaxUploadBytes   int64
	MaxEvaluateBytes int64
}

// Handler builds the routed and middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	if s.Metrics == nil {
		s.Metrics = hermes.NewNoopMetrics()
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.MaxEvaluateBytes <= 0 {
		s.MaxEvaluateBytes = DefaultMaxEvaluateBytes
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /run/stream", s.handleRunStream)
	mux.HandleFunc("GET /download", s.handleDownload)
	mux.HandleFunc("POST /evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.MetricsHandler)
	}

	var h http.Handler = mux
	h = AuthMiddleware(s.Logger, s.APIKey, []string{"/healthz", "/metrics"}, h)
	if s.Limiter != nil {
		h = charon.RateLimitMiddleware(s.Limiter, s.Clients, func(r *http.Request) {
			s.Metrics.IncCounter(hermes.MetricRateLimitedTotal, 1)
		})(h)
	}
	return MetricsMiddleware(s.Metrics, h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and a JSON body. Server-side failures
// are logged with their cause; the client only sees a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := charon.ToHTTPError(err)
	if httpErr.HTTPStatusCode() >= http.StatusInternalServerError {
		s.Logger.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, httpErr.HTTPStatusCode(), map[string]string{"error": httpErr.Message})
}
