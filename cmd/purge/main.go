// Command purge runs the archive scheduler once and prints what it changed.
// It is meant for cron jobs and manual runs when the in-process worker is disabled.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"commission_backend/internal/app"
	"commission_backend/internal/config"
	"commission_backend/internal/logger"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", "error", err)
	}

	report, err := a.Archive.RunOnce(ctx)
	a.Close()
	if err != nil {
		logger.Fatal("Archive run failed", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Fatal("Failed to write report", "error", err)
	}
}
