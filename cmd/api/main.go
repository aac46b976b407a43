package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"textnovel/internal/api"
	"textnovel/internal/broadcast"
	"textnovel/internal/config"
	"textnovel/internal/database"
	"textnovel/internal/logging"
	"textnovel/internal/repository"
	"textnovel/internal/scan"
	"textnovel/internal/service"
	"textnovel/internal/storage"
	"textnovel/internal/tasks"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.API.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	logger.Info("store ready", slog.String("driver", cfg.Store.Driver))

	var (
		redisClient *redis.Client
		notifier    broadcast.Notifier = broadcast.Nop{}
		queue       service.PurgeQueue
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("close redis client failed", slog.Any("error", err))
			}
		}()
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("ping redis: %v", err)
		}
		notifier = broadcast.NewPublisher(redisClient, logger)

		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
		defer asynqClient.Close()
		queue = tasks.NewQueue(asynqClient)
	} else {
		logger.Warn("redis disabled: change broadcast, upload rate limit and async purge are off")
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	var scanner service.Scanner
	if cfg.Clamd.Addr != "" {
		scanner = scan.NewClamdScanner(cfg.Clamd.Addr)
		logger.Info("upload scanning enabled", slog.String("clamd_addr", cfg.Clamd.Addr))
	}

	services := api.Services{
		Events: service.NewEventService(store, notifier),
		Texts:  service.NewTextService(store, notifier),
		Images: service.NewImageService(store, storageClient, service.ImageOptions{
			MaxBytes:         cfg.Upload.MaxBytes,
			AllowedMIMETypes: cfg.Upload.AllowedMIMETypes,
			Scanner:          scanner,
			Queue:            queue,
			Logger:           logger,
		}),
	}

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, cfg, services, redisClient)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
}

// openStore 按配置选择仓储实现。postgres 驱动会在启动时迁移表结构。
func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		return repository.NewMemoryRepository(), nil
	case config.StoreDriverPostgres:
		db, err := database.InitDatabase(cfg.Database, cfg.API.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return repository.NewGormRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
