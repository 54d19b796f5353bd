package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/climatewatch/auditview/internal/app"
	"github.com/climatewatch/auditview/internal/audit"
	audithttp "github.com/climatewatch/auditview/internal/audit/http"
	"github.com/climatewatch/auditview/internal/observability"
	"github.com/climatewatch/auditview/internal/platform/cache"
	"github.com/climatewatch/auditview/internal/proxy"
	"github.com/climatewatch/auditview/internal/shared"
	"github.com/climatewatch/auditview/internal/view"
)

const sessionPruneInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient := cache.NewClient(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if !app.InTestMode() {
		if err := cache.Ping(ctx, redisClient); err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditMetrics, err := audit.NewMetrics(metrics.Registerer())
	if err != nil {
		logger.Error("register audit metrics", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := audit.NewClient(cfg.AuditEndpoint,
		audit.WithTimeout(cfg.AuditFetchTimeout),
		audit.WithMetrics(auditMetrics),
	)
	if err != nil {
		logger.Error("audit client", slog.Any("error", err))
		os.Exit(1)
	}
	fetcher := audit.NewCachedFetcher(client, audit.NewCache(redisClient, cfg.AuditCacheTTL), auditMetrics,
		func(op string, err error) {
			logger.Warn("audit page cache", slog.String("op", op), slog.Any("error", err))
		})

	sessions := audit.NewSessions(fetcher, auditMetrics, cfg.AuditViewIdleTTL, cfg.AuditViewMaxSessions)
	if !app.InTestMode() {
		go sessions.Run(ctx, sessionPruneInterval)
	}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionSecret, "auditview_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	auditHandler := audithttp.NewHandler(logger, sessions, templates, csrfManager, fetcher)

	var apiProxy http.Handler
	if cfg.APIProxyTarget != "" {
		apiProxy, err = proxy.New(proxy.Config{
			Target:      cfg.APIProxyTarget,
			Prefix:      cfg.APIProxyPrefix,
			StripPrefix: cfg.APIProxyStrip,
		}, logger)
		if err != nil {
			logger.Error("api proxy", slog.Any("error", err))
			os.Exit(1)
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuditHandler:   auditHandler,
		APIProxy:       apiProxy,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("audit_endpoint", client.Endpoint()),
		)
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
