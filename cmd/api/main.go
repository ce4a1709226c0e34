// Package main is the entry point for the farm ranking API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/farmrank/internal/api"
	"github.com/onnwee/farmrank/internal/auth"
	"github.com/onnwee/farmrank/internal/config"
	"github.com/onnwee/farmrank/internal/db"
	"github.com/onnwee/farmrank/internal/distance"
	"github.com/onnwee/farmrank/internal/farm"
	"github.com/onnwee/farmrank/internal/health"
	"github.com/onnwee/farmrank/internal/idempotency"
	"github.com/onnwee/farmrank/internal/jobs"
	"github.com/onnwee/farmrank/internal/middleware"
	"github.com/onnwee/farmrank/internal/ranking"
	"github.com/onnwee/farmrank/internal/tracing"
	"github.com/onnwee/farmrank/internal/user"
)

// Cleanup intervals for the in-memory stores.
const (
	rateLimitCleanupInterval   = 5 * time.Minute
	idempotencyCleanupInterval = time.Hour
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "optional YAML config file; environment variables take precedence")
	flag.Parse()

	if *help {
		fmt.Println("Farm Ranking API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run wires dependencies, serves until SIGINT or SIGTERM and shuts down gracefully.
func run(cfg *config.Config, logger *slog.Logger) error {
	distanceProvider := "haversine"
	if cfg.DistanceAPIKey != "" {
		distanceProvider = "google"
	}

	tp, err := tracing.NewProvider(context.Background(), tracing.Config{
		ServiceName:      serviceName,
		Enabled:          cfg.TracingEnabled,
		Environment:      cfg.Env,
		ExporterType:     cfg.TracingExporter,
		OTLPEndpoint:     cfg.TracingEndpoint,
		SamplingRate:     cfg.TracingSampleRate,
		InsecureMode:     !cfg.IsProduction(),
		DistanceProvider: distanceProvider,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	conn, err := db.Open(context.Background(), cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	rankingMetrics := ranking.NewMetrics()
	if err := rankingMetrics.Register(registry); err != nil {
		return fmt.Errorf("register ranking metrics: %w", err)
	}
	distanceMetrics := distance.NewMetrics()
	if err := distanceMetrics.Register(registry); err != nil {
		return fmt.Errorf("register distance metrics: %w", err)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		return fmt.Errorf("register job metrics: %w", err)
	}

	stores, err := newSharedStores(cfg.RedisURL, jobMetrics, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	users := user.NewPostgresRepository(conn, logger)
	farms := farm.NewPostgresRepository(conn, logger)

	var distances distance.Client
	healthCfg := api.HealthHandlersConfig{DBChecker: health.NewDBChecker(conn)}
	if cfg.DistanceAPIKey != "" {
		distances = distance.NewGoogleClient(distance.GoogleConfig{
			URL:     cfg.DistanceAPIURL,
			APIKey:  cfg.DistanceAPIKey,
			Units:   cfg.DistanceUnits,
			Timeout: cfg.DistanceTimeout,
		}, distanceMetrics, logger)
		healthCfg.DistanceChecker = health.NewUpstreamChecker(cfg.DistanceAPIURL)
	} else {
		logger.Warn("DISTANCE_API_KEY not set, using great-circle distances")
		distances = distance.NewHaversineClient()
	}
	if stores.redis != nil {
		healthCfg.RedisChecker = health.NewRedisChecker(stores.redis)
	}

	pipeline := ranking.NewPipeline(users, farms, farms, distances,
		ranking.Config{OutlierBand: cfg.OutlierBand}, rankingMetrics, logger)

	tokens := auth.NewJWTService(cfg.JWTSecret)
	if cfg.JWTSecretPrevious != "" {
		tokens = auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTSecretPrevious)
	}

	handler := newHandler(serverDeps{
		Logger:         logger,
		Farms:          api.NewFarmHandlers(pipeline, farms, logger),
		Users:          api.NewUserHandlers(users, tokens, 0, logger),
		Health:         api.NewHealthHandlers(healthCfg),
		Tokens:         tokens,
		RateLimitStore: stores.rateLimit,
		Idempotency:    stores.idempotency,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitPerMinute,
			WindowDuration:    time.Minute,
		},
		Metrics:  httpMetrics,
		Gatherer: registry,
	})

	server := newServer(fmt.Sprintf(":%d", cfg.Port), handler)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down server...", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// sharedStores are the rate limit and idempotency stores. They live in
// Redis when configured so limits and replays hold across instances, and in
// process memory otherwise.
type sharedStores struct {
	rateLimit   middleware.RateLimitStore
	idempotency idempotency.Repository
	redis       *redis.Client
	stop        context.CancelFunc
}

func newSharedStores(redisURL string, jobMetrics *jobs.Metrics, logger *slog.Logger) (*sharedStores, error) {
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		logger.Info("shared stores backed by redis", "addr", opts.Addr)
		return &sharedStores{
			rateLimit:   middleware.NewRedisRateLimitStore(client),
			idempotency: idempotency.NewRedisRepository(client, idempotency.DefaultExpiry),
			redis:       client,
			stop:        func() {},
		}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	limits := middleware.NewInMemoryRateLimitStore()
	go jobs.RunPeriodic(ctx, jobs.JobTypeRateLimitCleanup, rateLimitCleanupInterval,
		func(context.Context) (int64, error) { return limits.Cleanup(), nil }, jobMetrics, logger)

	replays := idempotency.NewInMemoryRepository()
	go jobs.RunPeriodic(ctx, jobs.JobTypeIdempotencyCleanup, idempotencyCleanupInterval,
		func(context.Context) (int64, error) { return replays.DeleteOlderThan(idempotency.DefaultExpiry), nil }, jobMetrics, logger)

	return &sharedStores{rateLimit: limits, idempotency: replays, stop: cancel}, nil
}

// Close stops background cleanup and closes the Redis client.
func (s *sharedStores) Close() {
	s.stop()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
}
