package main

import (
	"log"
	"log/slog"

	"github.com/hibiken/asynq"

	"textnovel/internal/config"
	"textnovel/internal/logging"
	"textnovel/internal/metrics"
	"textnovel/internal/storage"
	"textnovel/internal/tasks"
	"textnovel/internal/worker"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.API.LogLevel)
	if !cfg.Redis.Enabled {
		log.Fatal("worker requires redis: unset REDIS_ENABLED or set it to true")
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeImagePurge, worker.NewImagePurgeHandler(storageClient, logger))

	logger.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
