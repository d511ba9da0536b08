package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apaddicto/internal/config"
	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/handler"
	"github.com/apaddicto/internal/logging"
	"github.com/apaddicto/internal/observability"
	"github.com/apaddicto/internal/router"
	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	serviceName     = "apaddicto-api"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.SessionSecretUnset {
		if cfg.IsProduction() {
			logger.Warn("SESSION_SECRET is not set, using a random per-process secret; sessions will not survive restarts")
		} else {
			logger.Warn("SESSION_SECRET is not set, using development secret")
		}
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	gdb, err := db.Open(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	if err := db.EnsureAdmin(gdb, cfg.SuperAdminEmail, cfg.SuperAdminPassword); err != nil {
		logger.Error("failed to ensure super admin", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, logger, observability.TracingConfig{
		ServiceName:  serviceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Exporter:     cfg.TracesExporter,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	var resetStore service.ResetTokenStore
	if cfg.RedisURL != "" {
		client, err := service.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, storing reset tokens in database", "error", err)
		} else {
			defer client.Close()
			resetStore = service.NewRedisResetTokenStore(client)
		}
	}

	api := handler.NewAPI(gdb, handler.Options{
		Env:            cfg.Env,
		Production:     cfg.IsProduction(),
		Logger:         logger,
		UploadDir:      cfg.UploadDir,
		UploadURL:      cfg.UploadURLPath,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		AppBaseURL:     cfg.AppBaseURL,
		ResetStore:     resetStore,
		Mailer:         service.NewMailer(cfg.SMTP, logger),
	})

	r := router.SetupRouter(router.Deps{
		API:           api,
		SessionSecret: cfg.SessionSecret,
		Production:    cfg.IsProduction(),
		CORSOrigins:   cfg.CORSOrigins,
		UploadDir:     cfg.UploadDir,
		UploadURLPath: cfg.UploadURLPath,
		ServiceName:   serviceName,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}
}
