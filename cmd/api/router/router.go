// Package router configures HTTP routes for the dashboard API.
//
// Routes configured:
//   - GET /health - Liveness, always {"status":"ok"}
//   - GET /ready - 200 "OK" while a model is loaded, 503 otherwise
//   - GET /metrics?n=12 - Last n monthly KPI aggregates
//   - GET /forecast[?end=YYYY-MM] - Monthly lead forecasts
//   - GET /anomalies?metric=cpl&k=2.5 - Z-score anomalies of a monthly metric
//   - POST /model/reload - Reload the model artifact from disk
//   - GET /internal/metrics - Prometheus metrics endpoint
//   - GET / - Dashboard frontend, when a static directory is configured
//
// Data is read from the store on every request. The model is read from the
// registry, which is swapped wholesale on reload.
package router

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/HatiCode/respond/cmd/api/metrics"
	"github.com/HatiCode/respond/cmd/api/tracing"
	"github.com/HatiCode/respond/pkg/anomaly"
	"github.com/HatiCode/respond/pkg/dataset"
	"github.com/HatiCode/respond/pkg/features"
	"github.com/HatiCode/respond/pkg/forecast"
	"github.com/HatiCode/respond/pkg/httpx"
	"github.com/HatiCode/respond/pkg/models"
	"github.com/HatiCode/respond/pkg/storage"
)

// Deps are the collaborators of the API handlers.
type Deps struct {
	Store     storage.Store
	Models    forecast.Source
	Forecasts *forecast.Service
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Reload replaces the served model from disk.
	Reload func() (*models.Handle, error)

	// Gatherer backs /internal/metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer

	ForecastEnd time.Time
	AnomalyK    float64
	MetricsN    int
	StaticDir   string
	CORSOrigins []string
}

// ModelInfo describes the served model.
type ModelInfo struct {
	Model     string    `json:"model"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run_id"`
	TrainedAt time.Time `json:"trained_at"`
}

// SetupRoutes builds the API handler including its middleware chain:
// recovery, request id, logging, CORS and tracing, outermost first.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.MetricsN <= 0 {
		d.MetricsN = 12
	}
	if d.AnomalyK <= 0 {
		d.AnomalyK = anomaly.DefaultThreshold
	}
	if d.ForecastEnd.IsZero() {
		d.ForecastEnd = forecast.DefaultEnd
	}
	h := &handlers{Deps: d}

	mux := http.NewServeMux()
	route := func(pattern, name string, fn http.HandlerFunc) {
		mux.Handle(pattern, d.Metrics.Instrument(name, fn))
	}
	route("GET /health", "/health", h.health)
	route("GET /metrics", "/metrics", h.monthlyMetrics)
	route("GET /forecast", "/forecast", h.forecast)
	route("GET /anomalies", "/anomalies", h.anomalies)
	route("POST /model/reload", "/model/reload", h.reload)
	mux.Handle("GET /ready", httpx.HealthHandlerWithCheck(h.ready))
	mux.Handle("GET /internal/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	if d.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(d.StaticDir)))
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "not found")
		})
	}

	c := cors.New(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{httpx.RequestIDHeader, tracing.TraceIDHeader},
	})

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(d.Logger),
		httpx.RequestIDMiddleware,
		httpx.LoggingMiddleware(d.Logger),
		c.Handler,
		tracing.Middleware,
	)
}

type handlers struct {
	Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) ready() error {
	if h.Models.Current() == nil {
		return forecast.ErrModelNotLoaded
	}
	return nil
}

func (h *handlers) monthlyMetrics(w http.ResponseWriter, r *http.Request) {
	n := h.MetricsN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = v
	}
	if n <= 0 {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "n must be a positive integer")
		return
	}

	records, err := h.Store.LoadMonthly(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tail, err := dataset.Tail(records, n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": tail})
}

func (h *handlers) forecast(w http.ResponseWriter, r *http.Request) {
	end := h.ForecastEnd
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := forecast.EndOfMonth(raw)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "end must be a month in YYYY-MM format")
			return
		}
		end = t
	}
	if h.Models.Current() == nil {
		h.fail(w, r, forecast.ErrModelNotLoaded)
		return
	}

	hourly, err := h.Store.LoadHourly(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start := time.Now()
	out, err := h.Forecasts.Monthly(r.Context(), hourly, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Metrics.ObserveForecast(time.Since(start))

	if out == nil {
		out = []forecast.MonthForecast{}
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"forecast_monthly": out})
}

func (h *handlers) anomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rawMetric := q.Get("metric")
	if rawMetric == "" {
		rawMetric = string(anomaly.MetricCPL)
	}
	metric, err := anomaly.ParseMetric(rawMetric)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	k := h.AnomalyK
	if raw := q.Get("k"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "k must be a positive number")
			return
		}
		k = v
	}

	records, err := h.Store.LoadMonthly(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	found, err := anomaly.Detect(records, metric, k)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Metrics.SetAnomalies(string(metric), len(found))
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"anomalies": found})
}

func (h *handlers) reload(w http.ResponseWriter, r *http.Request) {
	if h.Reload == nil {
		httpx.WriteErrorMessage(w, http.StatusNotImplemented, "model reload is not configured")
		return
	}
	handle, err := h.Reload()
	if err != nil {
		h.Logger.Error("model reload failed", "error", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "model reload failed: "+err.Error())
		return
	}
	art := handle.Artifact()
	_ = httpx.WriteJSON(w, http.StatusOK, ModelInfo{
		Model:     art.Name,
		Kind:      string(art.Kind),
		RunID:     art.RunID,
		TrainedAt: art.TrainedAt,
	})
}

// fail maps err to a status code and writes it as an error payload.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case anomaly.IsValidation(err),
		errors.Is(err, dataset.ErrInvalidCount),
		errors.Is(err, features.ErrInvalidHorizon):
		httpx.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, forecast.ErrModelNotLoaded):
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, forecast.ErrModelNotLoaded.Error())
	case storage.IsUnavailable(err):
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "data not available: "+err.Error())
	case errors.Is(err, features.ErrInsufficientHistory),
		errors.Is(err, dataset.ErrNotContiguous):
		httpx.WriteError(w, http.StatusInternalServerError, err)
	default:
		h.Logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
