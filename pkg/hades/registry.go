package hades

import (
	"context"
	"errors"

	"github.com/gridcast/stlf/pkg/domain"
)

// RunRegistry is Hades: the record of every upload and training run. The
// latest successful run supplies the drift baseline for the next one.

type RunRegistry interface {
	SaveUpload(ctx context.Context, upload domain.Upload) error
	GetUpload(ctx context.Context, id domain.UploadID) (*domain.Upload, error)
	LatestUpload(ctx context.Context) (*domain.Upload, error)

	SaveRun(ctx context.Context, run domain.TrainingRun) error
	GetRun(ctx context.Context, id domain.RunID) (*domain.TrainingRun, error)
	// ListRuns returns runs newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]domain.TrainingRun, error)
	// LatestRun returns the most recent run that succeeded.
	LatestRun(ctx context.Context) (*domain.TrainingRun, error)
}

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrUploadNotFound = errors.New("upload not found")
)
