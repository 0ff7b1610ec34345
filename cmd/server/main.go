package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gearstage/ops-api/internal/config"
	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/notify"
	"github.com/gearstage/ops-api/internal/router"
	"github.com/gearstage/ops-api/internal/service"
	"github.com/gearstage/ops-api/internal/worker"
	"github.com/gearstage/ops-api/internal/ws"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run()

	notifier := notify.NewService(queries, &notify.LogSender{Logger: logger}, logger)

	orderService := service.NewOrderService(
		pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		notifier,
	)

	interval, err := time.ParseDuration(cfg.WorkerInterval)
	if err != nil {
		logger.Fatal("invalid WORKER_INTERVAL", zap.Error(err))
	}
	processor := worker.NewProcessor(orderService, notifier, interval, logger)
	go processor.Run(ctx)

	r := router.New(cfg, queries, pool, notifier, hub)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
