package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/HatiCode/respond/pkg/dataset"
)

const schema = `
CREATE TABLE IF NOT EXISTS hourly (
	datetime TEXT PRIMARY KEY,
	leads    INTEGER NOT NULL,
	cpl      DOUBLE PRECISION NOT NULL,
	roi      DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS monthly (
	month TEXT PRIMARY KEY,
	leads INTEGER NOT NULL,
	cpl   DOUBLE PRECISION NOT NULL,
	roi   DOUBLE PRECISION NOT NULL
);`

// SQLStore keeps the tables in a SQL database through sqlx. Supported drivers
// are "sqlite" (modernc.org/sqlite, pure Go) and "postgres" (lib/pq).
// The schema exists from the moment the store connects, so loading a table
// that was never written returns ErrEmpty, not ErrNotFound.
type SQLStore struct {
	db *sqlx.DB
}

type hourlyRow struct {
	Datetime string  `db:"datetime"`
	Leads    int     `db:"leads"`
	CPL      float64 `db:"cpl"`
	ROI      float64 `db:"roi"`
}

type monthlyRow struct {
	Month string  `db:"month"`
	Leads int     `db:"leads"`
	CPL   float64 `db:"cpl"`
	ROI   float64 `db:"roi"`
}

// NewSQLStore connects with driver and dsn and creates the tables if needed.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY on concurrent saves
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Ping verifies connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) SaveHourly(ctx context.Context, series []dataset.Hourly) error {
	return s.replace(ctx, "hourly",
		`INSERT INTO hourly (datetime, leads, cpl, roi) VALUES (?, ?, ?, ?)`,
		len(series), func(i int) []any {
			h := series[i]
			return []any{h.Timestamp.UTC().Format(dataset.TimestampLayout), h.Leads, h.CPL, h.ROI}
		})
}

func (s *SQLStore) SaveMonthly(ctx context.Context, records []dataset.Monthly) error {
	return s.replace(ctx, "monthly",
		`INSERT INTO monthly (month, leads, cpl, roi) VALUES (?, ?, ?, ?)`,
		len(records), func(i int) []any {
			m := records[i]
			return []any{m.Month, m.Leads, m.CPL, m.ROI}
		})
}

// replace swaps the table contents inside one transaction.
func (s *SQLStore) replace(ctx context.Context, table, insert string, n int, args func(i int) []any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insert))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range n {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) LoadHourly(ctx context.Context) ([]dataset.Hourly, error) {
	var rows []hourlyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT datetime, leads, cpl, roi FROM hourly ORDER BY datetime`); err != nil {
		return nil, fmt.Errorf("select hourly: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: hourly", ErrEmpty)
	}

	out := make([]dataset.Hourly, len(rows))
	for i, r := range rows {
		ts, err := time.ParseInLocation(dataset.TimestampLayout, r.Datetime, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("hourly row %d: %w", i, err)
		}
		out[i] = dataset.Hourly{Timestamp: ts, Leads: r.Leads, CPL: r.CPL, ROI: r.ROI}
	}
	return out, nil
}

func (s *SQLStore) LoadMonthly(ctx context.Context) ([]dataset.Monthly, error) {
	var rows []monthlyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT month, leads, cpl, roi FROM monthly ORDER BY month`); err != nil {
		return nil, fmt.Errorf("select monthly: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: monthly", ErrEmpty)
	}

	out := make([]dataset.Monthly, len(rows))
	for i, r := range rows {
		out[i] = dataset.Monthly{Month: r.Month, Leads: r.Leads, CPL: r.CPL, ROI: r.ROI}
	}
	return out, nil
}
