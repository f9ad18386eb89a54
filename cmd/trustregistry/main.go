package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TrustRegistry/internal/app"
	"TrustRegistry/internal/config"
	"TrustRegistry/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application not started", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
