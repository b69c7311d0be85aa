package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-access/internal/app"
	"github.com/meridian-erp/meridian-access/internal/audit"
	"github.com/meridian-erp/meridian-access/internal/auth"
	"github.com/meridian-erp/meridian-access/internal/cachekit"
	"github.com/meridian-erp/meridian-access/internal/groups"
	"github.com/meridian-erp/meridian-access/internal/observability"
	"github.com/meridian-erp/meridian-access/internal/platform/cache"
	"github.com/meridian-erp/meridian-access/internal/platform/db"
	"github.com/meridian-erp/meridian-access/internal/rbac"
	"github.com/meridian-erp/meridian-access/internal/users"
	"github.com/meridian-erp/meridian-access/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	settings := app.NewSettings(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	validate := validator.New()

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	recorder := audit.NewQueueRecorder(jobClient, logger)

	cacheStore := cachekit.NewRedisStore(redisClient)
	permCache := rbac.NewPermissionCache(cacheStore, cfg.PermissionCacheTTL, cfg.CacheChunkSize, logger)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, permCache, recorder, logger)
	rbacHandler := rbac.NewHandler(logger, rbacService, validate)

	groupsRepo := groups.NewRepository(dbpool)
	groupsService := groups.NewService(groupsRepo, permCache, recorder, settings, logger)
	groupsHandler := groups.NewHandler(logger, groupsService, validate)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, recorder, logger)
	usersHandler := users.NewHandler(logger, usersService, validate)

	sessions := auth.NewSessionStore(redisClient, cfg.SessionTTL)
	authService := auth.NewService(usersRepo, sessions)
	authHandler := auth.NewHandler(logger, authService, validate)

	auditRepo := audit.NewPGRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AuthService:   authService,
		AuthHandler:   authHandler,
		GroupsHandler: groupsHandler,
		RBACHandler:   rbacHandler,
		UsersHandler:  usersHandler,
		AuditHandler:  auditHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
