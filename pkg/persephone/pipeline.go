package persephone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/gridcast/stlf/pkg/domain"
	"github.com/gridcast/stlf/pkg/erebus"
	"github.com/gridcast/stlf/pkg/hades"
	"github.com/gridcast/stlf/pkg/hermes"
	"github.com/gridcast/stlf/pkg/persephone/evaluator"
)

// ForecastColumn holds the model output in the written forecast file.
const ForecastColumn = "forecast"

// DefaultHoldoutHours is one week of hourly data.
const DefaultHoldoutHours = 168

// PipelineConfig holds the tunables of a training run.
type PipelineConfig struct {
	HoldoutHours int
	ZThreshold   float64
	MaxRows      int // cap on the resampled hourly grid
	Features     FeatureConfig
	Evaluation   evaluator.Options
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		HoldoutHours: DefaultHoldoutHours,
		ZThreshold:   DefaultZThreshold,
		MaxRows:      DefaultMaxRows,
		Features:     DefaultFeatureConfig(),
		Evaluation:   evaluator.DefaultOptions(),
	}
}

// Pipeline runs load → preprocess → features → train → evaluate → persist
// over uploads held in the blob store.
type Pipeline struct {
	store    erebus.Store
	registry hades.RunRegistry
	engine   *evaluator.Engine
	cfg      PipelineConfig
	logger   hermes.Logger
	metrics  hermes.Metrics
	now      func() time.Time
}

func NewPipeline(store erebus.Store, registry hades.RunRegistry, cfg PipelineConfig, logger hermes.Logger, metrics hermes.Metrics) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.HoldoutHours <= 0 {
		cfg.HoldoutHours = DefaultHoldoutHours
	}
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = DefaultZThreshold
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = hermes.NopLogger{}
	}
	if metrics == nil {
		metrics = hermes.NewNoopMetrics()
	}
	engine, err := evaluator.NewEngine(cfg.Evaluation)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		store:    store,
		registry: registry,
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// RunRequest selects the upload to train on. With neither field set the
// latest upload is used.
type RunRequest struct {
	UploadID domain.UploadID
	// InputKey reads a blob directly, bypassing the upload registry.
	InputKey string
	// Observer receives one event per completed stage. It is called on the
	// goroutine running the pipeline.
	Observer func(domain.StageEvent)
}

type RunResult struct {
	Run    domain.TrainingRun
	Report *evaluator.Report
}

type runState struct {
	p        *Pipeline
	run      *domain.TrainingRun
	observer func(domain.StageEvent)
	started  time.Time
}

func (s *runState) stage(ctx context.Context, stage domain.Stage, f *Frame, detail map[string]any) {
	now := s.p.now()
	dur := now.Sub(s.started)
	s.started = now

	event := domain.StageEvent{
		RunID:    s.run.ID,
		Stage:    stage,
		Duration: dur,
		Detail:   detail,
		At:       now,
	}
	if f != nil {
		event.Rows = f.Len()
		event.Columns = len(f.order) + 1
	}

	s.p.metrics.ObserveHistogram(hermes.MetricPipelineStageSecs, dur.Seconds(), hermes.Label{Key: "stage", Value: string(stage)})
	s.p.logger.Info(ctx, "pipeline stage", map[string]any{
		"run_id":  string(s.run.ID),
		"stage":   string(stage),
		"rows":    event.Rows,
		"columns": event.Columns,
	})
	if s.observer != nil {
		s.observer(event)
	}
}

// Run executes one training run. The run is recorded in the registry whether
// it succeeds or fails.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	inputKey, uploadID, err := p.resolveInput(ctx, req)
	if err != nil {
		return nil, err
	}
	ok, err := p.store.Exists(ctx, inputKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check input: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", erebus.ErrNotFound, inputKey)
	}

	var baseline *float64
	prev, err := p.registry.LatestRun(ctx)
	switch {
	case err == nil:
		baseline = prev.MAPE
	case !errors.Is(err, hades.ErrRunNotFound):
		return nil, fmt.Errorf("failed to read baseline run: %w", err)
	}

	start := p.now()
	run := &domain.TrainingRun{
		ID:        domain.RunID(uuid.NewString()),
		UploadID:  uploadID,
		Status:    domain.RunStatusRunning,
		InputKey:  inputKey,
		StartedAt: start,
		CreatedAt: start,
	}
	if err := p.registry.SaveRun(ctx, *run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	state := &runState{p: p, run: run, observer: req.Observer, started: start}
	report, err := p.execute(ctx, state, baseline)

	run.FinishedAt = p.now()
	result := "succeeded"
	if err != nil {
		result = "failed"
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		p.discardOutputs(context.WithoutCancel(ctx), run)
	} else {
		run.Status = domain.RunStatusSucceeded
	}
	p.metrics.IncCounter(hermes.MetricPipelineRunsTotal, 1, hermes.Label{Key: "result", Value: result})

	// Record the outcome even if the caller has gone away.
	if saveErr := p.registry.SaveRun(context.WithoutCancel(ctx), *run); saveErr != nil {
		p.logger.Error(ctx, "failed to record run outcome", map[string]any{"run_id": string(run.ID), "error": saveErr.Error()})
		if err == nil {
			err = fmt.Errorf("failed to record run: %w", saveErr)
		}
	}
	if err != nil {
		p.logger.Error(ctx, "pipeline failed", map[string]any{"run_id": string(run.ID), "error": err.Error()})
		return nil, err
	}

	state.stage(ctx, domain.StageCompleted, nil, map[string]any{"mape": run.MAPE})
	return &RunResult{Run: *run, Report: report}, nil
}

// discardOutputs removes whatever a failed run managed to persist so that
// no half-written forecast is served for it.
func (p *Pipeline) discardOutputs(ctx context.Context, run *domain.TrainingRun) {
	for _, key := range []string{run.OutputKey, run.ModelKey} {
		if key == "" {
			continue
		}
		if err := p.store.Delete(ctx, key); err != nil && !errors.Is(err, erebus.ErrNotFound) {
			p.logger.Warn(ctx, "failed to discard run output", map[string]any{"run_id": string(run.ID), "key": key, "error": err.Error()})
		}
	}
	run.OutputKey, run.ModelKey = "", ""
}

func (p *Pipeline) resolveInput(ctx context.Context, req RunRequest) (string, domain.UploadID, error) {
	if req.InputKey != "" {
		return req.InputKey, req.UploadID, nil
	}
	var upload *domain.Upload
	var err error
	if req.UploadID != "" {
		upload, err = p.registry.GetUpload(ctx, req.UploadID)
	} else {
		upload, err = p.registry.LatestUpload(ctx)
	}
	if err != nil {
		return "", "", err
	}
	return upload.Key, upload.ID, nil
}

func (p *Pipeline) execute(ctx context.Context, s *runState, baseline *float64) (*evaluator.Report, error) {
	run := s.run

	rc, err := p.store.Get(ctx, run.InputKey)
	if err != nil {
		return nil, err
	}
	frame, err := LoadCSV(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	optional := optionalPresent(frame)
	p.logger.Info(ctx, "input loaded", map[string]any{
		"run_id":           string(run.ID),
		"optional_columns": optional,
	})
	s.stage(ctx, domain.StageLoad, frame, map[string]any{"optional_columns": optional})

	frame = Clean(frame)
	s.stage(ctx, domain.StageClean, frame, nil)

	frame, err = EnforceHourly(frame, p.cfg.MaxRows)
	if err != nil {
		return nil, err
	}
	s.stage(ctx, domain.StageResample, frame, nil)

	frame, clipped := ClipOutliers(frame, p.cfg.ZThreshold)
	s.stage(ctx, domain.StageOutliers, frame, map[string]any{"clipped": clipped})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err = BuildFeatures(frame, p.cfg.Features)
	if err != nil {
		return nil, err
	}
	frame = DropIncomplete(frame)
	s.stage(ctx, domain.StageFeatures, frame, nil)
	if frame.Len() == 0 {
		return nil, fmt.Errorf("%w: no complete rows after feature engineering", ErrInsufficientData)
	}

	train, test := frame, frame
	if frame.Len() > p.cfg.HoldoutHours {
		split := frame.Len() - p.cfg.HoldoutHours
		train, test = frame.Slice(0, split), frame.Slice(split, frame.Len())
	}
	run.TrainRows, run.TestRows = train.Len(), test.Len()

	trainStart := time.Now()
	model, err := FitLinear(train, LoadColumn, HorizonColumn)
	if err != nil {
		return nil, err
	}
	trainSec := time.Since(trainStart).Seconds()
	run.Features = model.Features
	s.stage(ctx, domain.StageTrain, train, map[string]any{"features": len(model.Features)})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inferStart := time.Now()
	testPred, err := model.Predict(test)
	if err != nil {
		return nil, err
	}
	inferSec := time.Since(inferStart).Seconds()

	allPred, err := model.Predict(frame)
	if err != nil {
		return nil, err
	}
	s.stage(ctx, domain.StagePredict, test, nil)

	modelJSON, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	sizeMB := float64(len(modelJSON)) / (1024 * 1024)

	actual, _ := test.Column(LoadColumn)
	in := &evaluator.Input{
		Actual:    actual,
		Predicted: testPred,
		Horizons:  horizonsOf(test),
		Runtime: &evaluator.RuntimeStats{
			TrainingTimeSec:  &trainSec,
			InferenceTimeSec: &inferSec,
			ModelSizeMB:      &sizeMB,
		},
		BaselineMAPE: baseline,
	}
	evalStart := time.Now()
	report, err := p.engine.Evaluate(ctx, in)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.IncCounter(hermes.MetricEvaluationsTotal, 1, hermes.Label{Key: "status", Value: status})
	p.metrics.ObserveHistogram(hermes.MetricEvaluationSeconds, time.Since(evalStart).Seconds())
	if err != nil {
		return nil, err
	}
	if mape := report.Accuracy[evaluator.KeyMAPE]; !math.IsNaN(mape) {
		run.MAPE = &mape
		p.metrics.SetGauge(hermes.MetricLastRunMAPE, mape)
	}
	run.Report = report.Sanitized()
	s.stage(ctx, domain.StageEvaluate, test, map[string]any{"drift": string(report.DriftStatus())})

	output := frame.Clone()
	if err := output.Set(ForecastColumn, allPred); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := output.WriteCSV(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode forecast: %w", err)
	}
	run.OutputKey = erebus.OutputKey(string(run.ID))
	run.ModelKey = erebus.ModelKey(string(run.ID))
	if err := p.store.Put(ctx, run.OutputKey, &buf); err != nil {
		return nil, fmt.Errorf("failed to store forecast: %w", err)
	}
	if err := p.store.Put(ctx, run.ModelKey, bytes.NewReader(modelJSON)); err != nil {
		return nil, fmt.Errorf("failed to store model: %w", err)
	}
	s.stage(ctx, domain.StagePersist, output, nil)

	return report, nil
}

// horizonsOf reads the optional horizon column; every row is a one-step
// forecast when it is absent.
func horizonsOf(f *Frame) []int {
	horizons := make([]int, f.Len())
	col, ok := f.Column(HorizonColumn)
	for i := range horizons {
		if ok {
			horizons[i] = int(col[i])
		} else {
			horizons[i] = 1
		}
	}
	return horizons
}
