// Package forecast turns the served model's hourly predictions into monthly
// lead forecasts.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/respond/pkg/dataset"
	"github.com/HatiCode/respond/pkg/features"
)

// DefaultEnd is the last hour covered by a forecast unless the caller picks another.
var DefaultEnd = time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

// DefaultMaxHorizon bounds how far past the last observation a forecast may reach.
const DefaultMaxHorizon = 3 * 365 * 24 * time.Hour

var ErrModelNotLoaded = errors.New("model not loaded")

// MonthForecast is the predicted number of leads for one calendar month.
type MonthForecast struct {
	Month         string  `json:"month"`
	LeadsForecast float64 `json:"leads_forecast"`
}

// Service computes forecasts with the model provided by a Source.
type Service struct {
	source     Source
	maxHorizon time.Duration
	logger     *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithMaxHorizon sets the longest span between the last observation and the
// forecast end. Non-positive values keep the default.
func WithMaxHorizon(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxHorizon = d
		}
	}
}

// NewService creates a forecast service.
func NewService(source Source, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{source: source, maxHorizon: DefaultMaxHorizon, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Monthly predicts every hour from the one after the last observation up to
// end and sums the predictions per calendar month. Only full months strictly
// after the month of the last observation are returned.
func (s *Service) Monthly(ctx context.Context, hourly []dataset.Hourly, end time.Time) ([]MonthForecast, error) {
	h := s.source.Current()
	if h == nil {
		return nil, ErrModelNotLoaded
	}
	if err := dataset.ValidateHourly(hourly); err != nil {
		return nil, fmt.Errorf("hourly series: %w", err)
	}

	last := hourly[len(hourly)-1].Timestamp.UTC()
	end = end.UTC()
	span := end.Sub(last)
	horizon := int(span / time.Hour)
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: end %s is not after last observation %s",
			features.ErrInvalidHorizon, end.Format(dataset.TimestampLayout), last.Format(dataset.TimestampLayout))
	}
	if span > s.maxHorizon {
		return nil, fmt.Errorf("%w: end %s is more than %s after last observation %s",
			features.ErrInvalidHorizon, end.Format(dataset.TimestampLayout), s.maxHorizon, last.Format(dataset.TimestampLayout))
	}

	var (
		stamps []time.Time
		preds  []float64
		err    error
	)
	if h.IsSeries() {
		stamps = make([]time.Time, horizon)
		for i := range stamps {
			stamps[i] = last.Add(time.Duration(i+1) * time.Hour)
		}
		preds, err = h.PredictAt(stamps)
	} else {
		var set features.Set
		set, err = h.Builder().Build(hourly, horizon)
		if err != nil {
			return nil, err
		}
		stamps = set.Future.Timestamps
		preds, err = h.PredictFrame(set.Future)
	}
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := fullMonths(stamps, preds, last, end)
	s.logger.Debug("computed monthly forecast",
		"model", h.Artifact().Name,
		"horizon_hours", horizon,
		"months", len(out),
	)
	return out, nil
}

// fullMonths sums preds per month and keeps months after the month of last
// whose final hour does not pass end.
func fullMonths(stamps []time.Time, preds []float64, last, end time.Time) []MonthForecast {
	firstMonth := monthStart(last).AddDate(0, 1, 0)

	out := []MonthForecast{}
	index := map[string]int{}
	for i, ts := range stamps {
		start := monthStart(ts)
		if start.Before(firstMonth) {
			continue
		}
		if lastHour := start.AddDate(0, 1, 0).Add(-time.Hour); lastHour.After(end) {
			continue
		}
		label := dataset.MonthLabel(ts)
		j, ok := index[label]
		if !ok {
			j = len(out)
			index[label] = j
			out = append(out, MonthForecast{Month: label})
		}
		out[j].LeadsForecast += preds[i]
	}
	return out
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last hour of the month labelled YYYY-MM.
func EndOfMonth(label string) (time.Time, error) {
	start, err := time.ParseInLocation(dataset.MonthLayout, label, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: %w", label, err)
	}
	return start.AddDate(0, 1, 0).Add(-time.Hour), nil
}
