package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/api"
	"github.com/termsheet-validation/backend/internal/app"
	"github.com/termsheet-validation/backend/internal/metrics"
	"github.com/termsheet-validation/backend/internal/scheduler"
	"github.com/termsheet-validation/backend/pkg/config"
	appLogger "github.com/termsheet-validation/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting termsheet validation API server")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(pipeline.Processor, scheduler.Config{
			Interval:  time.Duration(cfg.Scheduler.IntervalSec) * time.Second,
			InboxDir:  cfg.Scheduler.InboxDir,
			Reference: pipeline.Reference,
		})
		sched.Start(ctx)
		defer sched.Stop()
	}

	server, stop := api.New(api.Config{
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:         cfg.Server.BodyLimit,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Development:       cfg.Logging.Level == "debug",
		AccessLog:         true,
	}, api.Deps{
		Processor:  pipeline.Processor,
		Store:      pipeline.Store,
		Classifier: pipeline.Classifier,
		Validator:  pipeline.Validator,
		Runs:       pipeline.Store,
		Ready:      pipeline.Ready,
	})
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
