package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/respond/pkg/models"
	"github.com/HatiCode/respond/pkg/storage"
	"github.com/HatiCode/respond/pkg/training"
)

// Job orchestrates one training run: load → select → refit → save.
type Job struct {
	store     storage.Store
	trainer   *training.Trainer
	modelPath string
	logger    *slog.Logger
}

// NewJob creates a training job writing its artifact to modelPath.
func NewJob(store storage.Store, trainer *training.Trainer, modelPath string, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		store:     store,
		trainer:   trainer,
		modelPath: modelPath,
		logger:    logger,
	}
}

// Run executes the job. The previous artifact is left untouched when any step fails.
func (j *Job) Run(ctx context.Context) (*training.Report, error) {
	start := time.Now()

	loadStart := time.Now()
	hourly, err := j.store.LoadHourly(ctx)
	if err != nil {
		return nil, fmt.Errorf("load hourly data: %w", err)
	}
	loadDuration := time.Since(loadStart)

	art, report, err := j.trainer.Train(ctx, hourly)
	if err != nil {
		return report, fmt.Errorf("train: %w", err)
	}

	saveStart := time.Now()
	if err := models.SaveArtifact(j.modelPath, art); err != nil {
		return report, fmt.Errorf("save artifact: %w", err)
	}
	saveDuration := time.Since(saveStart)

	j.logger.Info("training job complete",
		"run_id", report.RunID,
		"model", art.Name,
		"path", j.modelPath,
		"rows", len(hourly),
		"load_ms", loadDuration.Milliseconds(),
		"train_ms", report.Duration.Milliseconds(),
		"save_ms", saveDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}
