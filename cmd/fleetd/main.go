package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/joho/godotenv"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"

	"fleet-history-backend/config"
	"fleet-history-backend/internal/api"
	"fleet-history-backend/internal/db"
	"fleet-history-backend/internal/fleet"
	"fleet-history-backend/internal/meterfeed"
	"fleet-history-backend/internal/mw"
	"fleet-history-backend/internal/notification"
	"fleet-history-backend/internal/store"
)

func main() {
	// A local .env is optional.
	_ = godotenv.Load()

	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	log := logger.New(logLevel)
	defer func(l *zap.SugaredLogger) {
		_ = l.Sync()
	}(log)

	configPath, err := env.GetAsString("CONFIG_PATH", false, "./config/config.yaml")
	if err != nil {
		zap.S().Fatal(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		zap.S().Fatalf("Failed to load configuration from %s: %v", configPath, err)
	}
	zap.S().Infof("Configuration loaded from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		zap.S().Warnf("VAPID keys are not configured, push delivery is disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		zap.S().Fatalf("Failed to initialize database: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		zap.S().Fatalf("Failed to get sql.DB: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	responses := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)
	catalog := store.NewCatalog(gormDB, cfg.Alarms.Language)
	svc := fleet.NewService(
		store.NewGormStore(gormDB, store.Options{
			MaxAttempts:     cfg.Alarms.MaxWriteAttempts,
			DefaultPageSize: cfg.History.DefaultPageSize,
			MaxPageSize:     cfg.History.MaxPageSize,
		}),
		catalog,
		fleet.Options{
			EventCapacity:       cfg.History.EventCapacity,
			MaintenanceTypeName: cfg.Alarms.MaintenanceTypeName,
			Language:            cfg.Alarms.Language,
			OnChange:            api.InvalidateMachine(responses),
		},
	)

	outbox := store.NewOutbox(gormDB, store.OutboxOptions{
		MaxAttempts: cfg.WorkerPool.MaxAttempts,
		BaseBackoff: time.Duration(cfg.WorkerPool.BaseBackoffSeconds) * time.Second,
	})
	pool := notification.NewWorkerPool(notification.Options{
		Size:         cfg.WorkerPool.Size,
		PollInterval: cfg.WorkerPool.PollInterval,
		BatchSize:    cfg.WorkerPool.BatchSize,
	}, gormDB, outbox, catalog, webpushOptions)
	pool.Start(ctx)
	zap.S().Infof("Notification dispatcher started with %d workers", cfg.WorkerPool.Size)

	if cfg.MeterFeed.Enabled {
		go meterfeed.NewService(&cfg.MeterFeed, svc).Run(ctx)
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000))
	health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(sqlDB, time.Second))

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(cfg.Server, api.NewHandler(svc, gormDB, webpushOptions), responses, health)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.S().Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	zap.S().Infof("Shutdown signal received, stopping services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorf("HTTP server Shutdown: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		zap.S().Errorf("Failed to close database: %v", err)
	}
	zap.S().Infof("Server gracefully stopped")
}
