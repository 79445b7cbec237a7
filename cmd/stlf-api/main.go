package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridcast/stlf/pkg/charon"
	"github.com/gridcast/stlf/pkg/config"
	"github.com/gridcast/stlf/pkg/erebus"
	"github.com/gridcast/stlf/pkg/hades"
	"github.com/gridcast/stlf/pkg/hermes"
	"github.com/gridcast/stlf/pkg/olympus"
	"github.com/gridcast/stlf/pkg/persephone"
	"github.com/gridcast/stlf/pkg/persephone/evaluator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := hermes.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("Starting STLF API", "port", cfg.Port, "store", cfg.Store.Backend, "registry", cfg.Registry.Backend)

	// Adapters
	store, err := newStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		logger.Error("Failed to initialize registry", "error", err)
		os.Exit(1)
	}
	if closer, ok := registry.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	metrics := hermes.NewPrometheusMetrics()

	evalOpts := evaluator.Options{
		MaxHorizon:   cfg.Evaluation.MaxHorizon,
		WarningRatio: cfg.Evaluation.WarningRatio,
		DriftRatio:   cfg.Evaluation.DriftRatio,
		Parallel:     cfg.Evaluation.Parallel,
	}
	engine, err := evaluator.NewEngine(evalOpts)
	if err != nil {
		logger.Error("Invalid evaluation settings", "error", err)
		os.Exit(1)
	}

	pipeline, err := persephone.NewPipeline(store, registry, persephone.PipelineConfig{
		HoldoutHours: cfg.Pipeline.HoldoutHours,
		ZThreshold:   cfg.Pipeline.ZThreshold,
		MaxRows:      cfg.Pipeline.MaxRows,
		Features: persephone.FeatureConfig{
			Lags:    cfg.Pipeline.Lags,
			Windows: cfg.Pipeline.Windows,
		},
		Evaluation: evalOpts,
	}, hermes.NewSlogAdapter(logger), metrics)
	if err != nil {
		logger.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	var limiter charon.RateLimiter = charon.NewNoOpLimiter()
	if cfg.RateLimit.RPS > 0 {
		limiter = charon.NewTokenBucketLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	defer limiter.Close()
	clients, err := charon.NewClientResolver(cfg.RateLimit.TrustedProxies)
	if err != nil {
		logger.Error("Invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	server := &olympus.Server{
		Pipeline:       pipeline,
		Engine:         engine,
		Store:          store,
		Registry:       registry,
		Logger:         logger,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
		Limiter:        limiter,
		Clients:        clients,
		APIKey:         cfg.APIKey,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exited")
}

func newStore(cfg *config.Config) (erebus.Store, error) {
	if cfg.Store.Backend == "s3" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return erebus.NewS3Store(ctx, erebus.S3Options{
			Endpoint:   cfg.S3.Endpoint,
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			LocalCache: cfg.S3.CacheDir,
		})
	}
	return erebus.NewLocalStore(cfg.Store.Path)
}

func newRegistry(cfg *config.Config) (hades.RunRegistry, error) {
	if cfg.Registry.Backend == "redis" {
		return hades.NewRedisRegistry(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Password)
	}
	return hades.NewMemoryRegistry(), nil
}
