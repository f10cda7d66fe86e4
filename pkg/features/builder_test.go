package features

import (
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/HatiCode/respond/pkg/dataset"
)

func hourlySeries(n int, leads func(i int) int) []dataset.Hourly {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // Monday
	out := make([]dataset.Hourly, n)
	for i := range out {
		out[i] = dataset.Hourly{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Leads:     leads(i),
			CPL:       30,
			ROI:       0.3,
		}
	}
	return out
}

func TestNewBuilder(t *testing.T) {
	b := NewBuilder()
	if b == nil {
		t.Fatal("NewBuilder() returned nil")
	}

	want := []string{
		"hour", "dayofweek", "month",
		"hour_sin", "hour_cos", "dow_sin", "dow_cos", "month_sin", "month_cos",
		"leads_lag1", "leads_lag2", "leads_lag6", "leads_lag12", "leads_lag24",
		"leads_rollmean24", "leads_rollmean168",
	}
	got := b.Columns()
	if len(got) != len(want) {
		t.Fatalf("len(Columns()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Columns()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuilder_Build_Shapes(t *testing.T) {
	series := hourlySeries(400, func(i int) int { return i % 17 })
	set, err := NewBuilder().Build(series, 48)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if set.Train.Len() != 400-168 {
		t.Errorf("Train.Len() = %d, want %d", set.Train.Len(), 400-168)
	}
	if len(set.Target) != set.Train.Len() {
		t.Errorf("len(Target) = %d, want %d", len(set.Target), set.Train.Len())
	}
	if set.Future.Len() != 48 {
		t.Errorf("Future.Len() = %d, want 48", set.Future.Len())
	}
	if !set.Train.Timestamps[0].Equal(series[168].Timestamp) {
		t.Errorf("first train timestamp = %v, want %v", set.Train.Timestamps[0], series[168].Timestamp)
	}

	last := series[len(series)-1].Timestamp
	for h, ts := range set.Future.Timestamps {
		want := last.Add(time.Duration(h+1) * time.Hour)
		if !ts.Equal(want) {
			t.Errorf("Future.Timestamps[%d] = %v, want %v", h, ts, want)
		}
	}

	m := set.Train.Matrix()
	r, c := m.Dims()
	if r != set.Train.Len() || c != len(set.Train.Columns) {
		t.Errorf("Matrix() dims = %dx%d, want %dx%d", r, c, set.Train.Len(), len(set.Train.Columns))
	}
}

func TestBuilder_Build_CyclicEncoding(t *testing.T) {
	series := hourlySeries(300, func(i int) int { return 5 })
	set, err := NewBuilder().Build(series, 24)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	pairs := [][2]string{{"hour_sin", "hour_cos"}, {"dow_sin", "dow_cos"}, {"month_sin", "month_cos"}}
	for _, p := range pairs {
		s := set.Train.Column(p[0])
		c := set.Train.Column(p[1])
		for i := range s {
			if got := s[i]*s[i] + c[i]*c[i]; math.Abs(got-1) > 1e-9 {
				t.Fatalf("%s^2 + %s^2 at row %d = %v, want 1", p[0], p[1], i, got)
			}
		}
	}

	// hour 23 must sit closer to hour 0 than to hour 12 in encoded space
	enc := func(h float64) (float64, float64) {
		return math.Sin(2 * math.Pi * h / 24), math.Cos(2 * math.Pi * h / 24)
	}
	find := func(hour int) []float64 {
		for i, row := range set.Train.Rows {
			if int(row[0]) == hour {
				return set.Train.Rows[i]
			}
		}
		t.Fatalf("no row with hour %d", hour)
		return nil
	}
	r23, r0, r12 := find(23), find(0), find(12)
	dist := func(a, b []float64) float64 {
		return math.Hypot(a[3]-b[3], a[4]-b[4])
	}
	if dist(r23, r0) >= dist(r23, r12) {
		t.Errorf("hour 23 distance to 0 = %v, to 12 = %v; want closer to 0", dist(r23, r0), dist(r23, r12))
	}
	s23, c23 := enc(23)
	if math.Abs(r23[3]-s23) > 1e-12 || math.Abs(r23[4]-c23) > 1e-12 {
		t.Errorf("hour 23 encoding = (%v, %v), want (%v, %v)", r23[3], r23[4], s23, c23)
	}
}

func TestBuilder_Build_Calendar(t *testing.T) {
	series := hourlySeries(400, func(i int) int { return 1 })
	set, err := NewBuilder().Build(series, 1)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// first train row is 2024-01-08 00:00, a Monday
	row := set.Train.Rows[0]
	if row[0] != 0 || row[1] != 0 || row[2] != 1 {
		t.Errorf("calendar = (%v, %v, %v), want (0, 0, 1)", row[0], row[1], row[2])
	}

	sunday := time.Date(2024, 1, 14, 5, 0, 0, 0, time.UTC)
	for i, ts := range set.Train.Timestamps {
		if ts.Equal(sunday) {
			if got := set.Train.Rows[i][1]; got != 6 {
				t.Errorf("dayofweek for Sunday = %v, want 6", got)
			}
			if got := set.Train.Rows[i][0]; got != 5 {
				t.Errorf("hour = %v, want 5", got)
			}
		}
	}
}

func TestBuilder_Build_LagsAndRolling(t *testing.T) {
	series := hourlySeries(250, func(i int) int { return i })
	b := NewBuilder()
	set, err := b.Build(series, 3)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for i := range set.Train.Rows {
		tIdx := 168 + i
		if set.Target[i] != float64(tIdx) {
			t.Fatalf("Target[%d] = %v, want %d", i, set.Target[i], tIdx)
		}
		for _, l := range b.Lags {
			got := set.Train.Column("leads_lag" + strconv.Itoa(l))[i]
			if got != float64(tIdx-l) {
				t.Errorf("row %d lag%d = %v, want %d", i, l, got, tIdx-l)
			}
		}
		// mean of tIdx-W .. tIdx-1 for the identity series
		for _, w := range b.Windows {
			got := set.Train.Column("leads_rollmean" + strconv.Itoa(w))[i]
			want := float64(tIdx) - float64(w+1)/2
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("row %d rollmean%d = %v, want %v", i, w, got, want)
			}
		}
		if i > 3 {
			break
		}
	}
}

func TestBuilder_Build_RollingExcludesCurrent(t *testing.T) {
	// a spike at the current hour must not leak into its own rolling mean
	series := hourlySeries(200, func(i int) int {
		if i == 199 {
			return 1000
		}
		return 2
	})
	set, err := NewBuilder().Build(series, 1)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	last := set.Train.Len() - 1
	for _, col := range []string{"leads_rollmean24", "leads_rollmean168"} {
		if got := set.Train.Column(col)[last]; got != 2 {
			t.Errorf("%s at spike row = %v, want 2", col, got)
		}
	}
}

func TestBuilder_Build_FrozenFuture(t *testing.T) {
	series := hourlySeries(300, func(i int) int { return i % 10 })
	set, err := NewBuilder().Build(series, 5)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	n := len(set.Target)
	lag1 := set.Future.Column("leads_lag1")
	lag24 := set.Future.Column("leads_lag24")
	roll24 := set.Future.Column("leads_rollmean24")

	var sum float64
	for _, v := range set.Target[n-24:] {
		sum += v
	}
	for h := range set.Future.Rows {
		if lag1[h] != set.Target[n-1] {
			t.Errorf("future row %d lag1 = %v, want %v", h, lag1[h], set.Target[n-1])
		}
		if lag24[h] != set.Target[n-24] {
			t.Errorf("future row %d lag24 = %v, want %v", h, lag24[h], set.Target[n-24])
		}
		if math.Abs(roll24[h]-sum/24) > 1e-9 {
			t.Errorf("future row %d rollmean24 = %v, want %v", h, roll24[h], sum/24)
		}
	}

	// calendar columns still advance hour by hour
	hours := set.Future.Column("hour")
	for h := 1; h < len(hours); h++ {
		if hours[h] != math.Mod(hours[h-1]+1, 24) {
			t.Errorf("future hour[%d] = %v, want %v", h, hours[h], math.Mod(hours[h-1]+1, 24))
		}
	}
}

func TestBuilder_Build_Errors(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		n       int
		horizon int
		wantErr error
	}{
		{"zero horizon", NewBuilder(), 400, 0, ErrInvalidHorizon},
		{"negative horizon", NewBuilder(), 400, -3, ErrInvalidHorizon},
		{"short series", NewBuilder(), 168, 10, ErrInsufficientHistory},
		{"empty series", NewBuilder(), 0, 10, ErrInsufficientHistory},
		{"bad lag", &Builder{Lags: []int{0}, Windows: []int{24}}, 400, 10, ErrInvalidConfig},
		{"no offsets", &Builder{}, 400, 10, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := hourlySeries(tt.n, func(i int) int { return 3 })
			_, err := tt.builder.Build(series, tt.horizon)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuilder_Build_MinimalHistory(t *testing.T) {
	series := hourlySeries(169, func(i int) int { return 4 })
	set, err := NewBuilder().Build(series, 2)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if set.Train.Len() != 1 {
		t.Errorf("Train.Len() = %d, want 1", set.Train.Len())
	}
}

func TestFrame_ColumnMissing(t *testing.T) {
	f := Frame{Columns: []string{"a"}, Rows: [][]float64{{1}}}
	if f.Column("b") != nil {
		t.Error("Column() for missing name should be nil")
	}
	if f.Index("a") != 0 {
		t.Errorf("Index(a) = %d, want 0", f.Index("a"))
	}
	if (Frame{}).Matrix() != nil {
		t.Error("Matrix() of empty frame should be nil")
	}
}
