package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/authority/internal/admins"
	"github.com/odyssey-erp/authority/internal/app"
	"github.com/odyssey-erp/authority/internal/authority"
	authorityhttp "github.com/odyssey-erp/authority/internal/authority/http"
	"github.com/odyssey-erp/authority/internal/observability"
	"github.com/odyssey-erp/authority/internal/options"
	"github.com/odyssey-erp/authority/internal/platform/cache"
	"github.com/odyssey-erp/authority/internal/platform/db"
	"github.com/odyssey-erp/authority/internal/rbac"
	"github.com/odyssey-erp/authority/internal/shared"
	"github.com/odyssey-erp/authority/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("ensure schema", slog.Any("error", err))
		os.Exit(1)
	}

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

	metrics := observability.NewMetrics()

	adminRepo := admins.NewRepository(dbpool)
	engine := authority.New(adminRepo, adminRepo, options.NewRepository(dbpool), logger,
		authority.WithAuditor(shared.NewAuditLogger(dbpool)),
		authority.WithMetrics(authority.NewMetrics(metrics.Registerer())),
		authority.WithDefaults(cfg.AuthorityDefaults()),
	)
	if err := engine.EnsureDefaults(ctx); err != nil {
		logger.Error("seed authority options", slog.Any("error", err))
		os.Exit(1)
	}

	invalidator := cache.NewInvalidator(redisClient, logger)
	if err := invalidator.Subscribe(ctx, cache.ChannelAdministrators, func(string) { engine.Invalidate() }); err != nil {
		logger.Warn("subscribe invalidations", slog.Any("error", err))
	}

	redisOpts := cfg.RedisOpts()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "authority_session", cfg.SessionTTL, cfg.IsProduction())
	authorityHandler := authorityhttp.NewHandler(authorityhttp.Config{
		Logger:     logger,
		Engine:     engine,
		Sessions:   sessionManager,
		Queue:      jobClient,
		LogonLimit: cfg.LogonRateLimit,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		Authorizer:       engine,
		RBACMiddleware:   rbac.Middleware{Catalogs: engine, Logger: logger},
		AuthorityHandler: authorityHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
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
