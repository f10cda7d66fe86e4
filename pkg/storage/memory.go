package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/HatiCode/respond/pkg/dataset"
)

// MemoryStore keeps both tables in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	hourly  []dataset.Hourly
	monthly []dataset.Monthly
	hasH    bool
	hasM    bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveHourly(_ context.Context, series []dataset.Hourly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hourly = slices.Clone(series)
	s.hasH = true
	return nil
}

func (s *MemoryStore) SaveMonthly(_ context.Context, records []dataset.Monthly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly = slices.Clone(records)
	s.hasM = true
	return nil
}

func (s *MemoryStore) LoadHourly(_ context.Context) ([]dataset.Hourly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasH {
		return nil, ErrNotFound
	}
	if len(s.hourly) == 0 {
		return nil, ErrEmpty
	}
	return slices.Clone(s.hourly), nil
}

func (s *MemoryStore) LoadMonthly(_ context.Context) ([]dataset.Monthly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasM {
		return nil, ErrNotFound
	}
	if len(s.monthly) == 0 {
		return nil, ErrEmpty
	}
	return slices.Clone(s.monthly), nil
}
