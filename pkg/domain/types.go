package domain

import (
	"time"
)

// IDs

type RunID string
type UploadID string

// Statuses

type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Pipeline stages, in execution order.

type Stage string

const (
	StageLoad      Stage = "load"
	StageClean     Stage = "clean"
	StageResample  Stage = "resample"
	StageOutliers  Stage = "outliers"
	StageFeatures  Stage = "features"
	StageTrain     Stage = "train"
	StagePredict   Stage = "predict"
	StageEvaluate  Stage = "evaluate"
	StagePersist   Stage = "persist"
	StageCompleted Stage = "completed"
)

// Upload is a load-history CSV accepted by the API.

type Upload struct {
	ID        UploadID  `json:"id"`
	Filename  string    `json:"filename"`
	Key       string    `json:"key"` // object key in the blob store
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// TrainingRun records one pipeline execution and its evaluation.

type TrainingRun struct {
	ID         RunID     `json:"id"`
	UploadID   UploadID  `json:"upload_id"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	InputKey   string    `json:"input_key"`
	OutputKey  string    `json:"output_key,omitempty"`
	ModelKey   string    `json:"model_key,omitempty"`
	TrainRows  int       `json:"train_rows"`
	TestRows   int       `json:"test_rows"`
	Features   []string  `json:"features,omitempty"`
	// MAPE is the holdout MAPE; nil when it was undefined. The next run uses
	// it as its drift baseline.
	MAPE *float64 `json:"mape,omitempty"`
	// Report is the sanitized evaluation tree.
	Report     map[string]any `json:"report,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

// StageEvent reports progress of a running pipeline.

type StageEvent struct {
	RunID    RunID          `json:"run_id"`
	Stage    Stage          `json:"stage"`
	Rows     int            `json:"rows,omitempty"`
	Columns  int            `json:"columns,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}
