package main

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/carbonaware/faas-scheduler/internal/config"
	"github.com/carbonaware/faas-scheduler/internal/dispatch"
	"github.com/carbonaware/faas-scheduler/internal/handlers"
	"github.com/carbonaware/faas-scheduler/internal/middleware"
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

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize object store", "error", err)
		os.Exit(1)
	}

	// Without a configured queue the dispatcher still selects slots; it
	// just returns them without enqueueing.
	var queue dispatch.TaskQueue
	if cfg.TaskQueue.BaseURL != "" {
		queue = dispatch.NewHTTPTaskQueue(
			cfg.TaskQueue.BaseURL, cfg.TaskQueue.QueuePath, cfg.TaskQueue.Timeout, logger)
	} else {
		logger.Warn("task queue not configured, dispatch results will not be enqueued")
	}

	service := dispatch.NewService(store, queue, logger)

	handlerConfig := &handlers.Config{
		Version:      version,
		ServiceName:  "carbon-aware-dispatcher",
		StoreBackend: string(cfg.Store.Backend),
		BucketName:   cfg.Store.BucketName,
		TaskQueueSet: queue != nil,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogging(logger))

	handlers.RegisterDispatcherRoutes(r, handlers.NewDispatcherHandler(service, logger, handlerConfig))

	logger.Info("starting dispatcher service", "address", cfg.GetServerAddress())
	if err := r.Run(cfg.GetServerAddress()); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

func newStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		return storage.NewRedisStore(cfg.Store.RedisURL, cfg.Store.BucketName, logger)
	default:
		return storage.NewFileStore(cfg.Store.BucketDir, logger), nil
	}
}
