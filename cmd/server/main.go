// Package main runs the registration HTTP server with the confirmation retry worker and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/infest-events/registration/config"
	"github.com/infest-events/registration/internal/app"
	"github.com/infest-events/registration/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := app.NewLogger(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, deps, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer infra.Close()

	services, err := app.NewServices(cfg, deps, logger)
	if err != nil {
		logger.Fatal("services", zap.Error(err))
	}
	router := app.NewRouter(cfg, services, infra.Registry, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Confirmation retries run in-process unless a dedicated worker is deployed.
	if cfg.RunWorker && infra.Queue != nil {
		processor := worker.NewConfirmationProcessor(services.Store, services.Dispatcher, infra.Queue, logger.Named("worker"))
		g.Go(func() error {
			processor.Run(gctx)
			return nil
		})
		logger.Info("confirmation worker started")
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server", zap.Error(err))
	}
	logger.Info("server stopped")
}
