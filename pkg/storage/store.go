// Package storage persists the hourly and monthly KPI tables.
//
// All backends honour the same column contract (datetime,leads,cpl,roi for
// the hourly table and month,leads,cpl,roi for the monthly one). A table with
// no rows yields ErrEmpty. The file, memory and redis backends report a table
// that was never written as ErrNotFound; the SQL backend creates its tables on
// connect, so a never-written SQL table yields ErrEmpty instead.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/HatiCode/respond/pkg/dataset"
)

var (
	ErrNotFound = errors.New("table not found")
	ErrEmpty    = errors.New("table is empty")
)

// Store reads and writes the KPI tables. Saves replace the previous contents.
type Store interface {
	SaveHourly(ctx context.Context, series []dataset.Hourly) error
	SaveMonthly(ctx context.Context, records []dataset.Monthly) error
	LoadHourly(ctx context.Context) ([]dataset.Hourly, error)
	LoadMonthly(ctx context.Context) ([]dataset.Monthly, error)
}

// IsUnavailable reports whether err means the data could not be found or was empty.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmpty)
}

// normalize maps the dataset package's empty-table error to ErrEmpty.
func normalize(err error) error {
	if errors.Is(err, dataset.ErrEmpty) {
		return fmt.Errorf("%w: %v", ErrEmpty, err)
	}
	return err
}
