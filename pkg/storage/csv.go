package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/HatiCode/respond/internal/fsutil"
	"github.com/HatiCode/respond/pkg/dataset"
)

// Default file names inside the data directory.
const (
	HourlyFile  = "respond_hourly.csv"
	MonthlyFile = "respond.csv"
)

// CSVStore keeps each table as a flat CSV file in a directory.
type CSVStore struct {
	HourlyPath  string
	MonthlyPath string
}

// NewCSVStore creates a store rooted at dir using the default file names.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{
		HourlyPath:  filepath.Join(dir, HourlyFile),
		MonthlyPath: filepath.Join(dir, MonthlyFile),
	}
}

func (s *CSVStore) SaveHourly(_ context.Context, series []dataset.Hourly) error {
	return fsutil.WriteFileAtomic(s.HourlyPath, func(w io.Writer) error {
		return dataset.WriteHourlyCSV(w, series)
	})
}

func (s *CSVStore) SaveMonthly(_ context.Context, records []dataset.Monthly) error {
	return fsutil.WriteFileAtomic(s.MonthlyPath, func(w io.Writer) error {
		return dataset.WriteMonthlyCSV(w, records)
	})
}

func (s *CSVStore) LoadHourly(_ context.Context) ([]dataset.Hourly, error) {
	f, err := open(s.HourlyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	series, err := dataset.ReadHourlyCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.HourlyPath, normalize(err))
	}
	return series, nil
}

func (s *CSVStore) LoadMonthly(_ context.Context) ([]dataset.Monthly, error) {
	f, err := open(s.MonthlyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := dataset.ReadMonthlyCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.MonthlyPath, normalize(err))
	}
	return records, nil
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
