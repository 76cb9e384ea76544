// Package main runs the standalone confirmation email retry worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/infest-events/registration/config"
	"github.com/infest-events/registration/internal/app"
	"github.com/infest-events/registration/internal/worker"
)

func main() {
	logger := app.NewLogger(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, deps, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer infra.Close()
	if infra.Queue == nil {
		logger.Fatal("redis is required for the confirmation worker", zap.String("addr", cfg.Redis.Addr))
	}

	services, err := app.NewServices(cfg, deps, logger)
	if err != nil {
		logger.Fatal("services", zap.Error(err))
	}

	processor := worker.NewConfirmationProcessor(services.Store, services.Dispatcher, infra.Queue, logger.Named("worker"))
	logger.Info("worker started")
	processor.Run(ctx)

	stats := processor.Stats()
	logger.Info("worker stopped",
		zap.Int64("sent", stats.Sent.Load()),
		zap.Int64("skipped", stats.Skipped.Load()),
		zap.Int64("failed", stats.Failed.Load()),
	)
}
