// Package config implements the respond trainer config.
package config

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/HatiCode/respond/pkg/storage"
	"github.com/HatiCode/respond/pkg/training"
)

// Config holds all trainer configuration.
type Config struct {
	// Storage
	Storage     string
	DataDir     string
	RedisURL    string
	RedisPrefix string
	DSN         string

	// Training
	ModelPath string
	PanelFile string
	Folds     int
	Timeout   time.Duration

	// Experiment tracking
	PushgatewayURL string
	PushJob        string

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

	// Storage
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", storage.BackendCSV), "Storage backend: csv, memory, redis, sqlite or postgres")
	flag.StringVar(&cfg.DataDir, "data-dir", getEnv("DATA_DIR", "data"), "Data directory for csv and sqlite storage")
	flag.StringVar(&cfg.RedisURL, "redis-url", getEnv("REDIS_URL", "redis://localhost:6379/0"), "Redis URL")
	flag.StringVar(&cfg.RedisPrefix, "redis-prefix", getEnv("REDIS_PREFIX", "respond:"), "Redis key prefix")
	flag.StringVar(&cfg.DSN, "dsn", getEnv("DSN", ""), "SQL data source name")

	// Training
	flag.StringVar(&cfg.ModelPath, "model", getEnv("MODEL_PATH", "models/model.json"), "Output path of the model artifact")
	flag.StringVar(&cfg.PanelFile, "panel", getEnv("PANEL_FILE", ""), "YAML candidate panel (empty uses the built-in panel)")
	flag.IntVar(&cfg.Folds, "folds", getEnvInt("FOLDS", training.DefaultFolds), "Number of expanding-window folds")
	flag.DurationVar(&cfg.Timeout, "timeout", getEnvDuration("TIMEOUT", 30*time.Minute), "Maximum duration of the training run")

	// Experiment tracking
	flag.StringVar(&cfg.PushgatewayURL, "pushgateway-url", getEnv("PUSHGATEWAY_URL", ""), "Prometheus Pushgateway URL (empty disables)")
	flag.StringVar(&cfg.PushJob, "push-job", getEnv("PUSH_JOB", "respond_trainer"), "Pushgateway job name")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFile, "log-file", getEnv("LOG_FILE", ""), "Rotating log file (empty logs to stdout)")

	flag.Parse()

	if !slices.Contains(storage.Backends, cfg.Storage) {
		fmt.Fprintf(os.Stderr, "Error: --storage must be one of %s\n", strings.Join(storage.Backends, ", "))
		os.Exit(1)
	}
	if cfg.Storage == storage.BackendMemory {
		fmt.Fprintln(os.Stderr, "Error: --storage=memory has no data to train on")
		os.Exit(1)
	}
	if cfg.ModelPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --model is required")
		os.Exit(1)
	}
	if cfg.Folds < 1 {
		fmt.Fprintln(os.Stderr, "Error: --folds must be at least 1")
		os.Exit(1)
	}
	if cfg.Timeout <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --timeout must be positive")
		os.Exit(1)
	}

	return cfg
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
