package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/authority/internal/admins"
	"github.com/odyssey-erp/authority/internal/app"
	"github.com/odyssey-erp/authority/internal/authority"
	jobmetrics "github.com/odyssey-erp/authority/internal/jobs"
	"github.com/odyssey-erp/authority/internal/options"
	"github.com/odyssey-erp/authority/internal/platform/cache"
	"github.com/odyssey-erp/authority/internal/platform/db"
	"github.com/odyssey-erp/authority/internal/shared"
	"github.com/odyssey-erp/authority/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	adminRepo := admins.NewRepository(pool)
	engine := authority.New(adminRepo, adminRepo, options.NewRepository(pool), logger,
		authority.WithAuditor(shared.NewAuditLogger(pool)),
		authority.WithMetrics(authority.NewMetrics(nil)),
		authority.WithDefaults(cfg.AuthorityDefaults()),
	)

	migrateJob := jobs.NewRightsMigrateJob(
		engine,
		cache.NewInvalidator(redisClient, logger),
		cache.ChannelAdministrators,
		logger,
		jobmetrics.NewMetrics(nil),
	)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.RedisOpts(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRightsMigrate, Handler: migrateJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
