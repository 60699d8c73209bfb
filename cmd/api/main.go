package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dpin8449/KOMBUCHAS/internal/config"
	"github.com/dpin8449/KOMBUCHAS/internal/handler"
	"github.com/dpin8449/KOMBUCHAS/internal/infra/postgresql"
	"github.com/dpin8449/KOMBUCHAS/internal/infra/postgresql/migrations"
	infraredis "github.com/dpin8449/KOMBUCHAS/internal/infra/redis"
	"github.com/dpin8449/KOMBUCHAS/internal/observability"
	"github.com/dpin8449/KOMBUCHAS/internal/repository"
	"github.com/dpin8449/KOMBUCHAS/internal/service"
	"github.com/dpin8449/KOMBUCHAS/internal/transport"
	"github.com/dpin8449/KOMBUCHAS/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	cache, err := infraredis.NewRedisBatchCache(rdb, cfg.CacheTTL)
	if err != nil {
		logger.Fatal("batch cache initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	batchRepo := repository.NewGormBatchRepo(db)

	batchService, err := service.NewBatchService(batchRepo, cache, metrics, logger)
	if err != nil {
		logger.Fatal("batch service initialization failed", zap.Error(err))
	}
	finalizeService, err := service.NewFinalizeService(batchRepo, cache, metrics, logger)
	if err != nil {
		logger.Fatal("finalize service initialization failed", zap.Error(err))
	}
	refresher, err := service.NewDayRefresher(batchRepo, cache, cfg.RefreshInterval, logger)
	if err != nil {
		logger.Fatal("day refresher initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestIDMiddleware())
	app.Use(metrics.HTTPMiddleware())
	app.Use(transport.RateLimitMiddleware(limiter, logger))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterBatchRoutes(app, batchService, finalizeService); err != nil {
		logger.Fatal("batch routes registration failed", zap.Error(err))
	}
	if err := web.RegisterRoutes(app, batchService, finalizeService); err != nil {
		logger.Fatal("web routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := refresher.Start(ctx); err != nil {
			logger.Error("day refresher stopped", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsHandler(metrics),
	}
	go func() {
		logger.Info("metrics server started", zap.Int("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("kombuchas api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Error("api server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}

func metricsHandler(metrics *observability.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
