// Package main implements the respond data generator.
// It writes a synthetic hourly KPI series and its monthly aggregates to the
// configured storage backend.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HatiCode/respond/cmd/generator/config"
	"github.com/HatiCode/respond/pkg/logging"
	"github.com/HatiCode/respond/pkg/storage"
)

const version = "v0.1.0"

func main() {
	cfg := config.ParseFlags()

	logger := logging.New(logging.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
	})
	slog.SetDefault(logger)

	logger.Info("starting respond generator",
		"version", version,
		"end", cfg.End,
		"days", cfg.Days,
		"seed", cfg.Seed,
		"storage", cfg.Storage,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer storage.Close(store)

	if err := generate(ctx, cfg.Generator(), store, logger); err != nil {
		logger.Error("data generation failed", "error", err)
		storage.Close(store)
		os.Exit(1)
	}
}
