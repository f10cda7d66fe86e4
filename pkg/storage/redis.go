package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/respond/pkg/dataset"
)

// RedisStore keeps each table as one Redis string holding its CSV encoding,
// so the column contract is identical to the file backend.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to addr. ttl <= 0 stores tables without expiry.
// keyPrefix namespaces the keys, e.g. "respond:" gives "respond:hourly".
func NewRedisStore(addr, password string, db int, keyPrefix string, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, prefix: keyPrefix, ttl: ttl}, nil
}

// NewRedisStoreFromURL connects using a redis:// URL.
func NewRedisStoreFromURL(rawURL, keyPrefix string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opt), prefix: keyPrefix, ttl: ttl}, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) hourlyKey() string  { return s.prefix + "hourly" }
func (s *RedisStore) monthlyKey() string { return s.prefix + "monthly" }

func (s *RedisStore) SaveHourly(ctx context.Context, series []dataset.Hourly) error {
	var buf bytes.Buffer
	if err := dataset.WriteHourlyCSV(&buf, series); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.hourlyKey(), buf.Bytes(), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.hourlyKey(), err)
	}
	return nil
}

func (s *RedisStore) SaveMonthly(ctx context.Context, records []dataset.Monthly) error {
	var buf bytes.Buffer
	if err := dataset.WriteMonthlyCSV(&buf, records); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.monthlyKey(), buf.Bytes(), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.monthlyKey(), err)
	}
	return nil
}

func (s *RedisStore) LoadHourly(ctx context.Context) ([]dataset.Hourly, error) {
	raw, err := s.get(ctx, s.hourlyKey())
	if err != nil {
		return nil, err
	}
	series, err := dataset.ReadHourlyCSV(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.hourlyKey(), normalize(err))
	}
	return series, nil
}

func (s *RedisStore) LoadMonthly(ctx context.Context) ([]dataset.Monthly, error) {
	raw, err := s.get(ctx, s.monthlyKey())
	if err != nil {
		return nil, err
	}
	records, err := dataset.ReadMonthlyCSV(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.monthlyKey(), normalize(err))
	}
	return records, nil
}

func (s *RedisStore) get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: redis key %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, nil
}
