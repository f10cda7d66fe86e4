package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// Backend names accepted by Open.
const (
	BackendCSV      = "csv"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backends lists every supported backend name.
var Backends = []string{BackendCSV, BackendMemory, BackendRedis, BackendSQLite, BackendPostgres}

// Options selects and configures a backend.
type Options struct {
	Backend string

	// DataDir holds the CSV files, and the SQLite database when DSN is empty.
	DataDir string

	RedisURL    string
	RedisPrefix string
	RedisTTL    time.Duration

	// DSN is the SQL data source name for sqlite and postgres.
	DSN string
}

// Open creates the backend described by opts and verifies that it is
// reachable. Callers should release it with Close.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case BackendCSV, "":
		return NewCSVStore(opts.DataDir), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		s, err = NewRedisStoreFromURL(opts.RedisURL, opts.RedisPrefix, opts.RedisTTL)
	case BackendSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dsn = filepath.Join(opts.DataDir, "respond.db")
		}
		s, err = NewSQLStore(BackendSQLite, dsn)
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		s, err = NewSQLStore(BackendPostgres, opts.DSN)
	default:
		return nil, fmt.Errorf("invalid storage type %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if p, ok := s.(interface{ Ping(context.Context) error }); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			Close(s)
			return nil, fmt.Errorf("%s health check failed: %w", opts.Backend, err)
		}
	}
	return s, nil
}

// Close releases s if the backend holds connections.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
