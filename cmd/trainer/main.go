// Package main implements the respond trainer.
// The trainer loads the hourly KPI series, evaluates the candidate models with
// expanding-window cross-validation and writes the best one as the model
// artifact served by the API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HatiCode/respond/cmd/trainer/config"
	"github.com/HatiCode/respond/pkg/logging"
	"github.com/HatiCode/respond/pkg/storage"
	"github.com/HatiCode/respond/pkg/training"
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

	logger.Info("starting respond trainer",
		"version", version,
		"storage", cfg.Storage,
		"model", cfg.ModelPath,
		"folds", cfg.Folds,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	panel := training.DefaultPanel()
	if cfg.PanelFile != "" {
		p, err := training.LoadPanel(cfg.PanelFile)
		if err != nil {
			logger.Error("failed to load candidate panel", "path", cfg.PanelFile, "error", err)
			os.Exit(1)
		}
		panel = p
	}

	trackers := training.MultiTracker{training.LogTracker{Logger: logger}}
	if cfg.PushgatewayURL != "" {
		trackers = append(trackers, training.PushTracker{URL: cfg.PushgatewayURL, Job: cfg.PushJob})
	}

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer storage.Close(store)

	trainer := training.New(panel, logger,
		training.WithFolds(cfg.Folds),
		training.WithTracker(trackers),
	)
	job := NewJob(store, trainer, cfg.ModelPath, logger)

	if _, err := job.Run(ctx); err != nil {
		logger.Error("training failed", "error", err)
		storage.Close(store)
		os.Exit(1)
	}
}
