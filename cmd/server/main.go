package main

import (
	"log/slog"
	"os"

	"go-marketplace/internal/app"
	"go-marketplace/internal/config"
	"go-marketplace/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log, closer := logger.New(os.Stdout, logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	slog.SetDefault(log)
	defer closer.Close()

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		_ = closer.Close()
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		_ = closer.Close()
		os.Exit(1)
	}
}
