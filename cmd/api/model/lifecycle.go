// Package model manages the lifecycle of the model served by the API: the
// initial load at start-up and every later reload, keeping the metrics gauge
// and the gRPC health status in step with the registry.
package model

import (
	"log/slog"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/respond/cmd/api/metrics"
	"github.com/HatiCode/respond/pkg/forecast"
	"github.com/HatiCode/respond/pkg/models"
)

// HealthService is the gRPC health service name that tracks model readiness.
const HealthService = "respond.forecast"

// Lifecycle loads artifacts into a registry.
type Lifecycle struct {
	registry *forecast.Registry
	metrics  *metrics.Metrics
	health   *health.Server
	logger   *slog.Logger
}

// New creates a Lifecycle. health may be nil when gRPC is disabled.
func New(registry *forecast.Registry, m *metrics.Metrics, hs *health.Server, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lifecycle{registry: registry, metrics: m, health: hs, logger: logger}
	l.publish()
	return l
}

// Load performs the start-up load. A missing or broken artifact is logged and
// the server keeps running without a model.
func (l *Lifecycle) Load() {
	if _, err := l.Reload(); err != nil {
		l.logger.Warn("no model loaded, forecasts unavailable until reload",
			"path", l.registry.Path(),
			"error", err,
		)
	}
}

// Reload reads the artifact from disk and swaps it in. On failure the
// previous model stays in service.
func (l *Lifecycle) Reload() (*models.Handle, error) {
	h, err := l.registry.Reload()
	if err != nil {
		l.metrics.RecordReload("error")
		l.publish()
		return nil, err
	}
	l.metrics.RecordReload("success")
	l.publish()

	art := h.Artifact()
	l.logger.Info("model loaded",
		"path", l.registry.Path(),
		"model", art.Name,
		"kind", art.Kind,
		"run_id", art.RunID,
		"trained_at", art.TrainedAt,
		"rmse", art.RMSE,
	)
	return h, nil
}

func (l *Lifecycle) publish() {
	loaded := l.registry.Current() != nil
	l.metrics.SetModelLoaded(loaded)
	if l.health == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if loaded {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	l.health.SetServingStatus(HealthService, status)
}
