// Package config implements the respond data generator config.
package config

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/HatiCode/respond/pkg/generator"
	"github.com/HatiCode/respond/pkg/storage"
)

// Config holds all generator configuration.
type Config struct {
	// Series
	End  time.Time
	Days int
	Seed uint64

	// Storage
	Storage     string
	DataDir     string
	RedisURL    string
	RedisPrefix string
	DSN         string

	// Logging
	LogFormat string
	LogLevel  string
	LogFile   string
}

// Generator returns the series parameters.
func (c *Config) Generator() generator.Config {
	return generator.Config{End: c.End, Days: c.Days, Seed: c.Seed}
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
	defaults := generator.DefaultConfig()
	var end string
	var seed int

	// Series
	flag.StringVar(&end, "end", getEnv("END", defaults.End.Format(time.RFC3339)), "Last generated hour (RFC 3339)")
	flag.IntVar(&cfg.Days, "days", getEnvInt("DAYS", defaults.Days), "Number of days before --end to generate")
	flag.IntVar(&seed, "seed", getEnvInt("SEED", int(defaults.Seed)), "Random seed")

	// Storage
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", storage.BackendCSV), "Storage backend: csv, redis, sqlite or postgres")
	flag.StringVar(&cfg.DataDir, "data-dir", getEnv("DATA_DIR", "data"), "Data directory for csv and sqlite storage")
	flag.StringVar(&cfg.RedisURL, "redis-url", getEnv("REDIS_URL", "redis://localhost:6379/0"), "Redis URL")
	flag.StringVar(&cfg.RedisPrefix, "redis-prefix", getEnv("REDIS_PREFIX", "respond:"), "Redis key prefix")
	flag.StringVar(&cfg.DSN, "dsn", getEnv("DSN", ""), "SQL data source name")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFile, "log-file", getEnv("LOG_FILE", ""), "Rotating log file (empty logs to stdout)")

	flag.Parse()

	t, err := time.Parse(time.RFC3339, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: --end: %v\n", err)
		os.Exit(1)
	}
	cfg.End = t.UTC()
	if cfg.Days <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --days must be positive")
		os.Exit(1)
	}
	if seed < 0 {
		fmt.Fprintln(os.Stderr, "Error: --seed must not be negative")
		os.Exit(1)
	}
	cfg.Seed = uint64(seed)
	if !slices.Contains(storage.Backends, cfg.Storage) || cfg.Storage == storage.BackendMemory {
		fmt.Fprintln(os.Stderr, "Error: --storage must be one of csv, redis, sqlite, postgres")
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
