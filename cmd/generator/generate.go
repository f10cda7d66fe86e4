package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/respond/pkg/dataset"
	"github.com/HatiCode/respond/pkg/generator"
	"github.com/HatiCode/respond/pkg/storage"
)

// generate writes a fresh hourly series and its monthly aggregates to store.
func generate(ctx context.Context, cfg generator.Config, store storage.Store, logger *slog.Logger) error {
	start := time.Now()

	hourly, err := generator.Generate(cfg)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	monthly := dataset.AggregateMonthly(hourly)

	if err := store.SaveHourly(ctx, hourly); err != nil {
		return fmt.Errorf("save hourly: %w", err)
	}
	if err := store.SaveMonthly(ctx, monthly); err != nil {
		return fmt.Errorf("save monthly: %w", err)
	}

	logger.Info("data generation complete",
		"hours", len(hourly),
		"months", len(monthly),
		"first", hourly[0].Timestamp.Format(dataset.TimestampLayout),
		"last", hourly[len(hourly)-1].Timestamp.Format(dataset.TimestampLayout),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
