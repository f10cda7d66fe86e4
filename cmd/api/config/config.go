// Package config implements the respond API server config.
package config

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/respond/pkg/anomaly"
	"github.com/HatiCode/respond/pkg/forecast"
	"github.com/HatiCode/respond/pkg/storage"
)

// Config holds all API server configuration.
type Config struct {
	Listen     string
	GRPCListen string
	StaticDir  string

	// CORS
	CORSOrigins []string

	// Storage
	Storage     string
	DataDir     string
	RedisURL    string
	RedisPrefix string
	DSN         string

	// Model
	ModelPath  string
	WatchModel bool

	// Defaults for query parameters
	ForecastEnd        time.Time
	MaxForecastHorizon time.Duration
	AnomalyK           float64
	MetricsDefaultN    int

	// Tracing
	OTLPEndpoint string
	TraceRatio   float64

	// Logging
	LogFormat string
	LogLevel  string
	LogFile   string
}

// StorageOptions returns the storage selection for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:     c.Storage,
		DataDir:     c.DataDir,
		RedisURL:    c.RedisURL,
		RedisPrefix: c.RedisPrefix,
		DSN:         c.DSN,
	}
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
// Exits with status 1 on invalid values.
func ParseFlags() *Config {
	cfg := &Config{}
	var origins, end string

	// Server
	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8000"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")
	flag.StringVar(&cfg.StaticDir, "static-dir", getEnv("STATIC_DIR", ""), "Directory of the dashboard frontend served at / (empty disables)")
	flag.StringVar(&origins, "cors-origins", getEnv("CORS_ORIGINS", "*"), "Comma-separated allowed CORS origins")

	// Storage
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", storage.BackendCSV), "Storage backend: csv, memory, redis, sqlite or postgres")
	flag.StringVar(&cfg.DataDir, "data-dir", getEnv("DATA_DIR", "data"), "Data directory for csv and sqlite storage")
	flag.StringVar(&cfg.RedisURL, "redis-url", getEnv("REDIS_URL", "redis://localhost:6379/0"), "Redis URL")
	flag.StringVar(&cfg.RedisPrefix, "redis-prefix", getEnv("REDIS_PREFIX", "respond:"), "Redis key prefix")
	flag.StringVar(&cfg.DSN, "dsn", getEnv("DSN", ""), "SQL data source name")

	// Model
	flag.StringVar(&cfg.ModelPath, "model", getEnv("MODEL_PATH", "models/model.json"), "Model artifact path")
	flag.BoolVar(&cfg.WatchModel, "watch-model", getEnvBool("WATCH_MODEL", false), "Reload the model when the artifact changes")

	// Query defaults
	flag.StringVar(&end, "forecast-end", getEnv("FORECAST_END", forecast.DefaultEnd.Format("2006-01")), "Last month covered by /forecast (YYYY-MM)")
	flag.DurationVar(&cfg.MaxForecastHorizon, "forecast-max-horizon", getEnvDuration("FORECAST_MAX_HORIZON", forecast.DefaultMaxHorizon), "Longest forecast span past the last observation")
	flag.Float64Var(&cfg.AnomalyK, "anomaly-k", getEnvFloat("ANOMALY_K", anomaly.DefaultThreshold), "Default Z-score threshold")
	flag.IntVar(&cfg.MetricsDefaultN, "metrics-n", getEnvInt("METRICS_N", 12), "Default number of months returned by /metrics")

	// Tracing
	flag.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", getEnv("OTLP_ENDPOINT", ""), "OTLP/HTTP trace endpoint host:port (empty disables)")
	flag.Float64Var(&cfg.TraceRatio, "trace-ratio", getEnvFloat("TRACE_RATIO", 1.0), "Trace sampling ratio")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFile, "log-file", getEnv("LOG_FILE", ""), "Rotating log file (empty logs to stdout)")

	flag.Parse()

	cfg.CORSOrigins = splitList(origins)

	if !slices.Contains(storage.Backends, cfg.Storage) {
		fmt.Fprintf(os.Stderr, "Error: --storage must be one of %s\n", strings.Join(storage.Backends, ", "))
		os.Exit(1)
	}
	t, err := forecast.EndOfMonth(end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: --forecast-end: %v\n", err)
		os.Exit(1)
	}
	cfg.ForecastEnd = t
	if cfg.MaxForecastHorizon <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --forecast-max-horizon must be positive")
		os.Exit(1)
	}
	if !(cfg.AnomalyK > 0) {
		fmt.Fprintln(os.Stderr, "Error: --anomaly-k must be positive")
		os.Exit(1)
	}
	if cfg.MetricsDefaultN <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --metrics-n must be positive")
		os.Exit(1)
	}
	if cfg.TraceRatio < 0 || cfg.TraceRatio > 1 {
		fmt.Fprintln(os.Stderr, "Error: --trace-ratio must be in [0, 1]")
		os.Exit(1)
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
