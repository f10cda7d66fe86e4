// Package main implements the respond dashboard API server.
// It serves monthly KPI metrics, lead forecasts from the trained model and
// Z-score anomalies over HTTP, with an optional gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/respond/cmd/api/config"
	"github.com/HatiCode/respond/cmd/api/metrics"
	"github.com/HatiCode/respond/cmd/api/model"
	"github.com/HatiCode/respond/cmd/api/router"
	"github.com/HatiCode/respond/cmd/api/tracing"
	"github.com/HatiCode/respond/cmd/api/watcher"
	"github.com/HatiCode/respond/pkg/forecast"
	"github.com/HatiCode/respond/pkg/httpx"
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

	logger.Info("starting respond api",
		"version", version,
		"listen", cfg.Listen,
		"storage", cfg.Storage,
		"model", cfg.ModelPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "respond-api", cfg.OTLPEndpoint, cfg.TraceRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer storage.Close(store)

	m := metrics.New()
	registry := forecast.NewRegistry(cfg.ModelPath)

	var healthServer *health.Server
	if cfg.GRPCListen != "" {
		healthServer = health.NewServer()
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	}
	lifecycle := model.New(registry, m, healthServer, logger)
	lifecycle.Load()

	handler := router.SetupRoutes(router.Deps{
		Store:       store,
		Models:      registry,
		Forecasts:   forecast.NewService(registry, logger, forecast.WithMaxHorizon(cfg.MaxForecastHorizon)),
		Metrics:     m,
		Logger:      logger,
		Reload:      lifecycle.Reload,
		ForecastEnd: cfg.ForecastEnd,
		AnomalyK:    cfg.AnomalyK,
		MetricsN:    cfg.MetricsDefaultN,
		StaticDir:   cfg.StaticDir,
		CORSOrigins: cfg.CORSOrigins,
	})
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Stop(10 * time.Second)
	})

	if healthServer != nil {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			logger.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		grpcServer := grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)

		g.Go(func() error {
			logger.Info("grpc health server listening", "address", cfg.GRPCListen)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	if cfg.WatchModel {
		if err := os.MkdirAll(filepath.Dir(cfg.ModelPath), 0o755); err != nil {
			logger.Error("failed to create model directory", "error", err)
			os.Exit(1)
		}
		w := watcher.New(cfg.ModelPath, func() error {
			_, err := lifecycle.Reload()
			return err
		}, logger)
		g.Go(func() error { return w.Run(gctx) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server failed", "error", err)
	}

	logger.Info("shutting down")
	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := shutdownTracing(tctx); terr != nil {
		logger.Warn("tracing shutdown failed", "error", terr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
