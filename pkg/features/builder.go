// Package features turns the hourly KPI series into the tabular feature frames
// consumed by the regression models.
package features

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/HatiCode/respond/pkg/dataset"
)

var (
	ErrInvalidHorizon      = errors.New("horizon must be positive")
	ErrInsufficientHistory = errors.New("not enough history to build lag and rolling features")
	ErrInvalidConfig       = errors.New("lags and windows must be positive")
)

// Calendar columns, always first and in this order.
const (
	ColHour      = "hour"
	ColDayOfWeek = "dayofweek"
	ColMonth     = "month"
	ColHourSin   = "hour_sin"
	ColHourCos   = "hour_cos"
	ColDowSin    = "dow_sin"
	ColDowCos    = "dow_cos"
	ColMonthSin  = "month_sin"
	ColMonthCos  = "month_cos"
)

var calendarColumns = []string{
	ColHour, ColDayOfWeek, ColMonth,
	ColHourSin, ColHourCos,
	ColDowSin, ColDowCos,
	ColMonthSin, ColMonthCos,
}

// DefaultLags and DefaultWindows are the offsets used by NewBuilder.
var (
	DefaultLags    = []int{1, 2, 6, 12, 24}
	DefaultWindows = []int{24, 168}
)

// Frame is a dense feature table. Rows[i] holds the values for Timestamps[i]
// in the order given by Columns.
type Frame struct {
	Columns    []string
	Timestamps []time.Time
	Rows       [][]float64
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Rows) }

// Index returns the position of the named column or -1.
func (f Frame) Index(name string) int {
	return slices.Index(f.Columns, name)
}

// Column returns a copy of the named column, or nil if it does not exist.
func (f Frame) Column(name string) []float64 {
	j := f.Index(name)
	if j < 0 {
		return nil
	}
	out := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[j]
	}
	return out
}

// Matrix copies the rows into a gonum dense matrix. It returns nil for an empty frame.
func (f Frame) Matrix() *mat.Dense {
	if len(f.Rows) == 0 {
		return nil
	}
	m := mat.NewDense(len(f.Rows), len(f.Columns), nil)
	for i, row := range f.Rows {
		m.SetRow(i, row)
	}
	return m
}

// Set is the result of Build: the supervised training frame with its target
// and the frame for the hours to forecast.
type Set struct {
	Train  Frame
	Target []float64
	Future Frame
}

// Builder derives calendar, lag and rolling-mean features.
type Builder struct {
	Lags    []int
	Windows []int
}

// NewBuilder creates a builder with the default lags and windows.
func NewBuilder() *Builder {
	return &Builder{
		Lags:    slices.Clone(DefaultLags),
		Windows: slices.Clone(DefaultWindows),
	}
}

// Columns returns the feature column names in frame order.
func (b *Builder) Columns() []string {
	cols := slices.Clone(calendarColumns)
	for _, l := range b.Lags {
		cols = append(cols, "leads_lag"+strconv.Itoa(l))
	}
	for _, w := range b.Windows {
		cols = append(cols, "leads_rollmean"+strconv.Itoa(w))
	}
	return cols
}

// Build creates the training frame from series and a future frame covering the
// horizon hours after its last timestamp.
//
// Lag L at hour T is leads[T-L]. Rolling mean W at hour T averages leads[T-W..T-1]
// and never includes T itself. Rows whose lags or windows reach before the start
// of the series are dropped.
//
// Future rows cannot see their own predecessors, so every future row reuses the
// same lag and rolling values taken from the end of the observed series.
func (b *Builder) Build(series []dataset.Hourly, horizon int) (Set, error) {
	if horizon <= 0 {
		return Set{}, fmt.Errorf("%w: got %d", ErrInvalidHorizon, horizon)
	}
	span, err := b.span()
	if err != nil {
		return Set{}, err
	}
	if len(series) <= span {
		return Set{}, fmt.Errorf("%w: have %d rows, need more than %d", ErrInsufficientHistory, len(series), span)
	}

	leads := dataset.Leads(series)
	prefix := prefixSums(leads)
	cols := b.Columns()

	n := len(series) - span
	train := Frame{
		Columns:    cols,
		Timestamps: make([]time.Time, 0, n),
		Rows:       make([][]float64, 0, n),
	}
	target := make([]float64, 0, n)

	for t := span; t < len(series); t++ {
		ts := series[t].Timestamp
		row := calendar(ts, len(cols))
		for _, l := range b.Lags {
			row = append(row, leads[t-l])
		}
		for _, w := range b.Windows {
			row = append(row, (prefix[t]-prefix[t-w])/float64(w))
		}
		train.Timestamps = append(train.Timestamps, ts)
		train.Rows = append(train.Rows, row)
		target = append(target, leads[t])
	}

	// frozen lag and rolling values from the tail of the series
	last := len(leads)
	frozen := make([]float64, 0, len(b.Lags)+len(b.Windows))
	for _, l := range b.Lags {
		frozen = append(frozen, leads[last-l])
	}
	for _, w := range b.Windows {
		frozen = append(frozen, (prefix[last]-prefix[last-w])/float64(w))
	}

	future := Frame{
		Columns:    cols,
		Timestamps: make([]time.Time, horizon),
		Rows:       make([][]float64, horizon),
	}
	lastTS := series[last-1].Timestamp
	for h := range horizon {
		ts := lastTS.Add(time.Duration(h+1) * time.Hour)
		row := calendar(ts, len(cols))
		row = append(row, frozen...)
		future.Timestamps[h] = ts
		future.Rows[h] = row
	}

	return Set{Train: train, Target: target, Future: future}, nil
}

// span is the largest lag or window, i.e. the number of leading rows dropped.
func (b *Builder) span() (int, error) {
	span := 0
	for _, v := range slices.Concat(b.Lags, b.Windows) {
		if v <= 0 {
			return 0, fmt.Errorf("%w: got %d", ErrInvalidConfig, v)
		}
		span = max(span, v)
	}
	if span == 0 {
		return 0, fmt.Errorf("%w: no lags or windows configured", ErrInvalidConfig)
	}
	return span, nil
}

// calendar returns the calendar encodings of ts with room for capacity columns.
func calendar(ts time.Time, capacity int) []float64 {
	ts = ts.UTC()
	hour := float64(ts.Hour())
	dow := float64((int(ts.Weekday()) + 6) % 7) // Monday=0
	month := float64(ts.Month())

	row := make([]float64, 0, capacity)
	row = append(row,
		hour, dow, month,
		math.Sin(2*math.Pi*hour/24), math.Cos(2*math.Pi*hour/24),
		math.Sin(2*math.Pi*dow/7), math.Cos(2*math.Pi*dow/7),
		math.Sin(2*math.Pi*month/12), math.Cos(2*math.Pi*month/12),
	)
	return row
}

// prefixSums returns p with p[i] = sum(v[:i]).
func prefixSums(v []float64) []float64 {
	p := make([]float64, len(v)+1)
	for i, x := range v {
		p[i+1] = p[i] + x
	}
	return p
}
