// Package dataset defines the hourly and monthly KPI records shared by the
// generator, the storage backends, the trainer and the dashboard API.
//
// Hourly observations are the raw series: one row per hour with a lead count,
// the cost-per-lead and the return on investment for that hour. Monthly
// aggregates are derived deterministically from them.
package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Column names of the persisted tables. Storage backends and the API rely on them.
const (
	ColumnDatetime = "datetime"
	ColumnMonth    = "month"
	ColumnLeads    = "leads"
	ColumnCPL      = "cpl"
	ColumnROI      = "roi"

	// TimestampLayout is how hourly timestamps are written to flat files.
	TimestampLayout = "2006-01-02 15:04:05"
	// MonthLayout is the calendar month label format.
	MonthLayout = "2006-01"
)

var (
	ErrEmpty         = errors.New("series is empty")
	ErrNotContiguous = errors.New("timestamps are not contiguous hours")
	ErrInvalidCount  = errors.New("record count must be positive")
)

// Hourly is a single hourly KPI observation.
type Hourly struct {
	Timestamp time.Time
	Leads     int
	CPL       float64
	ROI       float64
}

// Monthly is the aggregate of all hourly observations in one calendar month.
type Monthly struct {
	Month string  `json:"month"`
	Leads int     `json:"leads"`
	CPL   float64 `json:"cpl"`
	ROI   float64 `json:"roi"`
}

// ValidateHourly checks that series is non-empty and that every timestamp is
// exactly one hour after its predecessor.
func ValidateHourly(series []Hourly) error {
	if len(series) == 0 {
		return ErrEmpty
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Timestamp.Equal(series[i-1].Timestamp.Add(time.Hour)) {
			return fmt.Errorf("%w: row %d at %s follows %s", ErrNotContiguous, i,
				series[i].Timestamp.Format(TimestampLayout),
				series[i-1].Timestamp.Format(TimestampLayout))
		}
	}
	return nil
}

// MonthLabel returns the calendar month label of t, e.g. "2025-09".
func MonthLabel(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// AggregateMonthly groups hourly observations by calendar month.
// Leads are summed, CPL is averaged and rounded to 2 places, ROI is averaged
// and rounded to 3 places. Months appear in order of first occurrence, which is
// chronological for a valid hourly series.
func AggregateMonthly(series []Hourly) []Monthly {
	if len(series) == 0 {
		return nil
	}

	type acc struct {
		leads  int
		cplSum float64
		roiSum float64
		count  int
	}

	order := make([]string, 0)
	groups := make(map[string]*acc)
	for _, h := range series {
		label := MonthLabel(h.Timestamp)
		g, ok := groups[label]
		if !ok {
			g = &acc{}
			groups[label] = g
			order = append(order, label)
		}
		g.leads += h.Leads
		g.cplSum += h.CPL
		g.roiSum += h.ROI
		g.count++
	}

	out := make([]Monthly, 0, len(order))
	for _, label := range order {
		g := groups[label]
		n := float64(g.count)
		out = append(out, Monthly{
			Month: label,
			Leads: g.leads,
			CPL:   Round(g.cplSum/n, 2),
			ROI:   Round(g.roiSum/n, 3),
		})
	}
	return out
}

// Tail returns the last n monthly records. If n exceeds the series length the
// whole series is returned.
func Tail(records []Monthly, n int) ([]Monthly, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, n)
	}
	if n >= len(records) {
		return records, nil
	}
	return records[len(records)-n:], nil
}

// Round rounds v to places decimal places using banker's rounding, the same
// rule the KPI tables have always been written with.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}

// Leads extracts the lead counts of series as floats.
func Leads(series []Hourly) []float64 {
	out := make([]float64, len(series))
	for i, h := range series {
		out[i] = float64(h.Leads)
	}
	return out
}

// Timestamps extracts the timestamps of series.
func Timestamps(series []Hourly) []time.Time {
	out := make([]time.Time, len(series))
	for i, h := range series {
		out[i] = h.Timestamp
	}
	return out
}
