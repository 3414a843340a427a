package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/carbonaware/faas-scheduler/internal/config"
	"github.com/carbonaware/faas-scheduler/internal/deploy"
	"github.com/carbonaware/faas-scheduler/internal/forecast"
	"github.com/carbonaware/faas-scheduler/internal/handlers"
	"github.com/carbonaware/faas-scheduler/internal/llm"
	"github.com/carbonaware/faas-scheduler/internal/middleware"
	"github.com/carbonaware/faas-scheduler/internal/planner"
	"github.com/carbonaware/faas-scheduler/internal/storage"
)

const version = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.String())

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize object store", "error", err)
		os.Exit(1)
	}

	// The static configuration is loaded once at startup and shared
	// read-only across requests.
	staticCfg, err := planner.LoadStaticConfig(context.Background(), store)
	if err != nil {
		logger.Error("failed to load static configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("static configuration loaded", "regions", len(staticCfg.Regions))

	forecaster := forecast.NewClient(
		cfg.Forecast.Token, cfg.Forecast.BaseURL, cfg.Forecast.UseLiveForecast,
		cfg.Forecast.Timeout, logger)
	generator := llm.NewClient(
		cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout, logger)
	deployer := deploy.NewHTTPClient(
		cfg.Deployer.BaseURL, cfg.Deployer.APIKey, cfg.Deployer.Timeout, logger)

	p := planner.New(store, forecaster, generator, deployer, staticCfg, logger)

	handlerConfig := &handlers.Config{
		Version:          version,
		ServiceName:      "carbon-aware-planner",
		ForecastTokenSet: cfg.Forecast.Token != "",
		LLMKeySet:        cfg.LLM.APIKey != "",
		StoreBackend:     string(cfg.Store.Backend),
		BucketName:       cfg.Store.BucketName,
		DeployerURL:      cfg.Deployer.BaseURL,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogging(logger))

	handlers.RegisterPlannerRoutes(r, handlers.NewPlannerHandler(p, logger, handlerConfig))

	logger.Info("starting planner service", "address", cfg.GetServerAddress())
	if err := r.Run(cfg.GetServerAddress()); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// newStore builds the configured object store backend.
func newStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		return storage.NewRedisStore(cfg.Store.RedisURL, cfg.Store.BucketName, logger)
	default:
		return storage.NewFileStore(cfg.Store.BucketDir, logger), nil
	}
}
