// Package metrics provides Prometheus metrics instrumentation for the API server.
//
// Metrics are exposed on /internal/metrics; /metrics is the KPI endpoint.
//
// Metrics exposed:
//   - respond_http_requests_total: Counter of HTTP requests by route and status
//   - respond_http_request_duration_seconds: Histogram of request durations by route
//   - respond_forecast_compute_seconds: Histogram of forecast computation time
//   - respond_anomalies_found: Gauge of anomalies returned by the last request per metric
//   - respond_model_loaded: Gauge set to 1 while a model is being served
//   - respond_model_reloads_total: Counter of model reloads by result
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ForecastCompute     prometheus.Histogram
	AnomaliesFound      *prometheus.GaugeVec
	ModelLoaded         prometheus.Gauge
	ModelReloads        *prometheus.CounterVec
}

// New registers the API metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the API metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "respond_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "respond_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		ForecastCompute: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "respond_forecast_compute_seconds",
			Help:    "Time spent building features and predicting a forecast",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),

		AnomaliesFound: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "respond_anomalies_found",
			Help: "Number of anomalies returned by the last request per metric",
		}, []string{"metric"}),

		ModelLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "respond_model_loaded",
			Help: "1 if a model is loaded and serving forecasts",
		}),

		ModelReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "respond_model_reloads_total",
			Help: "Total number of model reloads by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordRequest(route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveForecast(d time.Duration) {
	m.ForecastCompute.Observe(d.Seconds())
}

func (m *Metrics) SetAnomalies(metric string, n int) {
	m.AnomaliesFound.WithLabelValues(metric).Set(float64(n))
}

func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
	} else {
		m.ModelLoaded.Set(0)
	}
}

// RecordReload counts a reload attempt; result is "success" or "error".
func (m *Metrics) RecordReload(result string) {
	m.ModelReloads.WithLabelValues(result).Inc()
}

// Instrument wraps h and records its requests under route.
func (m *Metrics) Instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		m.RecordRequest(route, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
