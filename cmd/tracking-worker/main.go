package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	appconfig "github.com/oncotrack-ai/platform/internal/config"
	trackingworker "github.com/oncotrack-ai/platform/internal/worker/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting tracking worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down tracking worker...")
		cancel()
	}()

	if err := trackingworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("tracking worker failed", "error", err)
		os.Exit(1)
	}
}
