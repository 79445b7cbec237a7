package olympus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gridcast/stlf/pkg/charon"
	"github.com/gridcast/stlf/pkg/domain"
	"github.com/gridcast/stlf/pkg/erebus"
	"github.com/gridcast/stlf/pkg/hermes"
	"github.com/gridcast/stlf/pkg/persephone"
	"github.com/gridcast/stlf/pkg/persephone/evaluator"
)

// UploadResponse acknowledges a stored CSV.
type UploadResponse struct {
	Message  string          `json:"message"`
	UploadID domain.UploadID `json:"upload_id"`
}

// RunResponse summarises a finished pipeline run.
type RunResponse struct {
	Message     string         `json:"message"`
	RunID       domain.RunID   `json:"run_id"`
	DownloadURL string         `json:"download_url"`
	Report      map[string]any `json:"report"`
}

func downloadURL(id domain.RunID) string {
	return "/download?run_id=" + url.QueryEscape(string(id))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: multipart field \"file\" is required", charon.ErrBadRequest))
		return
	}
	defer file.Close()

	id := domain.UploadID(uuid.NewString())
	key := erebus.UploadKey(string(id))
	if err := s.Store.Put(r.Context(), key, file); err != nil {
		s.writeError(w, r, err)
		return
	}

	upload := domain.Upload{
		ID:        id,
		Filename:  filepath.Base(header.Filename),
		Key:       key,
		Size:      header.Size,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Registry.SaveUpload(r.Context(), upload); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Logger.Info("Upload stored", "upload_id", id, "filename", upload.Filename, "size", upload.Size)
	writeJSON(w, http.StatusOK, UploadResponse{Message: "File uploaded successfully", UploadID: id})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.Pipeline.Run(r.Context(), persephone.RunRequest{
		UploadID: domain.UploadID(r.URL.Query().Get("upload_id")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		Message:     "Pipeline completed",
		RunID:       res.Run.ID,
		DownloadURL: downloadURL(res.Run.ID),
		Report:      res.Run.Report,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var run *domain.TrainingRun
	var err error
	if id := r.URL.Query().Get("run_id"); id != "" {
		run, err = s.Registry.GetRun(r.Context(), domain.RunID(id))
	} else {
		run, err = s.Registry.LatestRun(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if run.OutputKey == "" {
		s.writeError(w, r, fmt.Errorf("%w: run %s has no forecast output", erebus.ErrNotFound, run.ID))
		return
	}

	rc, err := s.Store.Get(r.Context(), run.OutputKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="forecast_output.csv"`)
	if _, err := io.Copy(w, rc); err != nil {
		s.Logger.Warn("Download interrupted", "run_id", run.ID, "error", err)
	}
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxEvaluateBytes)
	var in evaluator.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, err)
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", charon.ErrBadRequest, err))
		return
	}

	start := time.Now()
	report, err := s.Engine.Evaluate(r.Context(), &in)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.Metrics.IncCounter(hermes.MetricEvaluationsTotal, 1, hermes.Label{Key: "status", Value: status})
	s.Metrics.ObserveHistogram(hermes.MetricEvaluationSeconds, time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report.Sanitized())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", charon.ErrBadRequest))
			return
		}
		limit = n
	}

	runs, err := s.Registry.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Registry.GetRun(r.Context(), domain.RunID(r.PathValue("id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
