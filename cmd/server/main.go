package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"recon/internal/app"
	"recon/internal/platform/config"
	"recon/internal/platform/logger"
)

// main loads configuration from RECON_* variables (and RECON_CONFIG, when
// set), then serves until interrupted.
func main() {
	cfg, err := config.Load(os.Getenv("RECON_CONFIG"))
	if err != nil {
		logger.New(config.LogConfig{}).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Serve(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
