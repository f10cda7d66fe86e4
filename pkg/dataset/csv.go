package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var hourlyHeader = []string{ColumnDatetime, ColumnLeads, ColumnCPL, ColumnROI}
var monthlyHeader = []string{ColumnMonth, ColumnLeads, ColumnCPL, ColumnROI}

// WriteHourlyCSV encodes series as CSV with the datetime,leads,cpl,roi header.
func WriteHourlyCSV(w io.Writer, series []Hourly) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(hourlyHeader); err != nil {
		return err
	}
	for _, h := range series {
		rec := []string{
			h.Timestamp.UTC().Format(TimestampLayout),
			strconv.Itoa(h.Leads),
			formatFloat(h.CPL),
			formatFloat(h.ROI),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMonthlyCSV encodes records as CSV with the month,leads,cpl,roi header.
func WriteMonthlyCSV(w io.Writer, records []Monthly) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(monthlyHeader); err != nil {
		return err
	}
	for _, m := range records {
		rec := []string{m.Month, strconv.Itoa(m.Leads), formatFloat(m.CPL), formatFloat(m.ROI)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadHourlyCSV decodes an hourly table. Columns are located by header name,
// so extra columns and any column order are accepted.
func ReadHourlyCSV(r io.Reader) ([]Hourly, error) {
	records, idx, err := readTable(r, hourlyHeader)
	if err != nil {
		return nil, err
	}

	out := make([]Hourly, 0, len(records))
	for i, rec := range records {
		ts, err := parseTimestamp(rec[idx[ColumnDatetime]])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		leads, err := parseCount(rec[idx[ColumnLeads]])
		if err != nil {
			return nil, fmt.Errorf("row %d: leads: %w", i+1, err)
		}
		cpl, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[ColumnCPL]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: cpl: %w", i+1, err)
		}
		roi, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[ColumnROI]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: roi: %w", i+1, err)
		}
		out = append(out, Hourly{Timestamp: ts, Leads: leads, CPL: cpl, ROI: roi})
	}
	return out, nil
}

// ReadMonthlyCSV decodes a monthly table.
func ReadMonthlyCSV(r io.Reader) ([]Monthly, error) {
	records, idx, err := readTable(r, monthlyHeader)
	if err != nil {
		return nil, err
	}

	out := make([]Monthly, 0, len(records))
	for i, rec := range records {
		month := strings.TrimSpace(rec[idx[ColumnMonth]])
		if _, err := time.Parse(MonthLayout, month); err != nil {
			return nil, fmt.Errorf("row %d: month: %w", i+1, err)
		}
		leads, err := parseCount(rec[idx[ColumnLeads]])
		if err != nil {
			return nil, fmt.Errorf("row %d: leads: %w", i+1, err)
		}
		cpl, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[ColumnCPL]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: cpl: %w", i+1, err)
		}
		roi, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[ColumnROI]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: roi: %w", i+1, err)
		}
		out = append(out, Monthly{Month: month, Leads: leads, CPL: cpl, ROI: roi})
	}
	return out, nil
}

// readTable reads the header and all records, returning the position of each
// required column.
func readTable(r io.Reader, required []string) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrEmpty
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.Trim(h, "\""))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, ErrEmpty
	}
	return records, idx, nil
}

// parseTimestamp accepts the table layout and RFC3339. Values without a zone
// are taken as UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimestampLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// parseCount parses an integer count, tolerating a trailing ".0".
func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
