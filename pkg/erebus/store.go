package erebus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store is Erebus: the blob store for uploaded load histories, forecast
// outputs and serialized models.

type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

var (
	ErrNotFound   = errors.New("erebus: object not found")
	ErrInvalidKey = errors.New("erebus: invalid key")
)

// Well-known key layouts.

func UploadKey(uploadID string) string {
	return path.Join("uploads", uploadID+".csv")
}

func OutputKey(runID string) string {
	return path.Join("outputs", runID, "forecast_output.csv")
}

func ModelKey(runID string) string {
	return path.Join("models", runID+".json")
}

// CleanKey normalises key to a slash-separated relative path and rejects keys
// that are empty or would resolve outside the store root.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	key = strings.ReplaceAll(key, "\\", "/")
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: absolute key %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the store root", ErrInvalidKey, key)
	}
	return cleaned, nil
}
