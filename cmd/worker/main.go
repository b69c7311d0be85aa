package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-access/internal/app"
	"github.com/meridian-erp/meridian-access/internal/audit"
	"github.com/meridian-erp/meridian-access/internal/cachekit"
	"github.com/meridian-erp/meridian-access/internal/platform/cache"
	"github.com/meridian-erp/meridian-access/internal/platform/db"
	"github.com/meridian-erp/meridian-access/internal/rbac"
	"github.com/meridian-erp/meridian-access/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	writer := audit.NewWriter(pool)

	cacheStore := cachekit.NewRedisStore(redisClient)
	permCache := rbac.NewPermissionCache(cacheStore, cfg.PermissionCacheTTL, cfg.CacheChunkSize, logger)
	rbacRepo := rbac.NewRepository(pool)
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	recorder := audit.NewQueueRecorder(jobClient, logger)
	rbacService := rbac.NewService(rbacRepo, permCache, recorder, logger)
	warmer := rbac.NewWarmer(rbacRepo, rbacService, logger)

	warmupTask, err := jobs.NewPermissionWarmupTask(200)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeAuditRecord, Handler: jobs.NewAuditRecordHandler(writer, logger)},
			{Type: jobs.TaskTypePermissionWarmup, Handler: jobs.NewPermissionWarmupHandler(warmer, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
