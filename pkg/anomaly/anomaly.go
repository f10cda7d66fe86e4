// Package anomaly flags months whose CPL or ROI deviates from the series mean
// by more than k population standard deviations.
package anomaly

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/respond/pkg/dataset"
)

// DefaultThreshold is the z-score magnitude above which a month is anomalous.
const DefaultThreshold = 2.5

var (
	ErrInvalidMetric    = errors.New("metric must be cpl or roi")
	ErrInvalidThreshold = errors.New("threshold must be a positive number")
	ErrEmptySeries      = errors.New("no monthly records to analyse")
)

// Metric selects the monthly column to analyse.
type Metric string

const (
	MetricCPL Metric = dataset.ColumnCPL
	MetricROI Metric = dataset.ColumnROI
)

// ParseMetric validates s. Matching is exact.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCPL, MetricROI:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidMetric, s)
	}
}

// Record is a month flagged as anomalous.
type Record struct {
	Month  string  `json:"month"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score"`
}

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidMetric) ||
		errors.Is(err, ErrInvalidThreshold) ||
		errors.Is(err, ErrEmptySeries)
}

// Detect returns the records whose |z| exceeds k, in input order, where
// z = (v - mean) / std over all records using the population standard
// deviation. A series with zero spread has no anomalies.
func Detect(records []dataset.Monthly, metric Metric, k float64) ([]Record, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if math.IsNaN(k) || math.IsInf(k, 0) || k <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, k)
	}
	if len(records) == 0 {
		return nil, ErrEmptySeries
	}

	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = value(r, metric)
	}
	mean, std := stat.PopMeanStdDev(values, nil)

	out := []Record{}
	if std == 0 || math.IsNaN(std) {
		return out, nil
	}
	for i, v := range values {
		z := (v - mean) / std
		if math.Abs(z) > k {
			out = append(out, Record{Month: records[i].Month, Value: v, ZScore: z})
		}
	}
	return out, nil
}

func value(r dataset.Monthly, metric Metric) float64 {
	if metric == MetricROI {
		return r.ROI
	}
	return r.CPL
}
