package model

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/respond/cmd/api/metrics"
	"github.com/HatiCode/respond/pkg/forecast"
	"github.com/HatiCode/respond/pkg/models"
)

func healthStatus(t *testing.T, hs *health.Server) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: HealthService})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	return resp.GetStatus()
}

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	m := models.NewDecomposition(1, 0, 0)
	m.Origin = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Span = 100
	m.Coef = []float64{5, 1, 0.5, -0.5}
	err := models.SaveArtifact(path, &models.Artifact{
		RunID:     "run-7",
		Name:      "Prophet",
		Kind:      models.KindDecomposition,
		TrainedAt: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		Model:     m,
	})
	if err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	registry := forecast.NewRegistry(path)
	m := metrics.NewWith(prometheus.NewRegistry())
	hs := health.NewServer()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := New(registry, m, hs, logger)
	if got := healthStatus(t, hs); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial status = %v, want NOT_SERVING", got)
	}

	// missing artifact
	l.Load()
	if registry.Current() != nil {
		t.Fatal("registry should be empty")
	}
	if got := testutil.ToFloat64(m.ModelLoaded); got != 0 {
		t.Errorf("model_loaded = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ModelReloads.WithLabelValues("error")); got != 1 {
		t.Errorf("reloads{error} = %v, want 1", got)
	}

	writeArtifact(t, path)
	h, err := l.Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if h.Artifact().RunID != "run-7" {
		t.Errorf("RunID = %q, want run-7", h.Artifact().RunID)
	}
	if got := healthStatus(t, hs); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}
	if got := testutil.ToFloat64(m.ModelLoaded); got != 1 {
		t.Errorf("model_loaded = %v, want 1", got)
	}

	// a broken artifact keeps the previous model in service
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err == nil {
		t.Fatal("Reload() expected error for corrupt artifact")
	}
	if registry.Current() != h {
		t.Error("registry should keep the previous handle")
	}
	if got := healthStatus(t, hs); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status after failed reload = %v, want SERVING", got)
	}
	if got := testutil.ToFloat64(m.ModelReloads.WithLabelValues("success")); got != 1 {
		t.Errorf("reloads{success} = %v, want 1", got)
	}
}

func TestLifecycle_NoHealthServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	writeArtifact(t, path)

	l := New(forecast.NewRegistry(path), metrics.NewWith(prometheus.NewRegistry()), nil, nil)
	if _, err := l.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
}
