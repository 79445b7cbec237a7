package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.Store.Backend)
	assert.Equal(t, "memory", cfg.Registry.Backend)
	assert.Equal(t, 168, cfg.Pipeline.HoldoutHours)
	assert.Equal(t, 100000, cfg.Pipeline.MaxRows)
	assert.Empty(t, cfg.RateLimit.TrustedProxies)
	assert.Equal(t, []int{1, 24, 168}, cfg.Pipeline.Lags)
	assert.Equal(t, 24, cfg.Evaluation.MaxHorizon)
	assert.InDelta(t, 1.2, cfg.Evaluation.WarningRatio, 1e-12)
	assert.InDelta(t, 1.5, cfg.Evaluation.DriftRatio, 1e-12)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STLF_PORT", "9090")
	t.Setenv("STLF_REGISTRY_BACKEND", "redis")
	t.Setenv("STLF_REDIS_ADDR", "redis:6379")
	t.Setenv("STLF_EVALUATION_DRIFT_RATIO", "2.0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis", cfg.Registry.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.InDelta(t, 2.0, cfg.Evaluation.DriftRatio, 1e-12)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := []byte(`
store:
  backend: s3
s3:
  bucket: forecasts
  endpoint: http://minio:9000
pipeline:
  holdout_hours: 48
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stlf.yaml"), content, 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Store.Backend)
	assert.Equal(t, "forecasts", cfg.S3.Bucket)
	assert.Equal(t, "http://minio:9000", cfg.S3.Endpoint)
	assert.Equal(t, 48, cfg.Pipeline.HoldoutHours)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v map[string]any)
	}{
		{"bad store", func(v map[string]any) { v["store.backend"] = "ftp" }},
		{"bad registry", func(v map[string]any) { v["registry.backend"] = "etcd" }},
		{"zero holdout", func(v map[string]any) { v["pipeline.holdout_hours"] = 0 }},
		{"inverted ratios", func(v map[string]any) { v["evaluation.drift_ratio"] = 1.1 }},
		{"zero max rows", func(v map[string]any) { v["pipeline.max_rows"] = 0 }},
		{"huge max rows", func(v map[string]any) { v["pipeline.max_rows"] = 3_000_000 }},
		{"zero horizon", func(v map[string]any) { v["evaluation.max_horizon"] = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			overrides := map[string]any{}
			tt.mutate(overrides)
			for k, val := range overrides {
				v.Set(k, val)
			}
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}
