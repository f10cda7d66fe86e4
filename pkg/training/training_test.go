package training

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/respond/pkg/dataset"
	"github.com/HatiCode/respond/pkg/generator"
	"github.com/HatiCode/respond/pkg/models"
)

func TestTimeSeriesSplit(t *testing.T) {
	folds, err := TimeSeriesSplit(12, 5)
	if err != nil {
		t.Fatalf("TimeSeriesSplit() error = %v", err)
	}
	want := []Fold{{2, 4}, {4, 6}, {6, 8}, {8, 10}, {10, 12}}
	if len(folds) != len(want) {
		t.Fatalf("len(folds) = %d, want %d", len(folds), len(want))
	}
	for i := range want {
		if folds[i] != want[i] {
			t.Errorf("folds[%d] = %+v, want %+v", i, folds[i], want[i])
		}
	}
}

func TestTimeSeriesSplit_Ordering(t *testing.T) {
	for _, n := range []int{6, 37, 1000, 26113} {
		folds, err := TimeSeriesSplit(n, DefaultFolds)
		if err != nil {
			t.Fatalf("TimeSeriesSplit(%d) error = %v", n, err)
		}
		if last := folds[len(folds)-1]; last.TestEnd != n {
			t.Errorf("n=%d: last fold ends at %d, want %d", n, last.TestEnd, n)
		}
		for i, f := range folds {
			if f.TrainEnd <= 0 {
				t.Errorf("n=%d fold %d: empty training range", n, i)
			}
			if f.TestEnd <= f.TrainEnd {
				t.Errorf("n=%d fold %d: empty test range", n, i)
			}
			// every training index precedes every test index
			if i > 0 && f.TrainEnd <= folds[i-1].TrainEnd {
				t.Errorf("n=%d fold %d: training window did not expand", n, i)
			}
		}
	}
}

func TestTimeSeriesSplit_Errors(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		folds int
	}{
		{"too few rows", 5, 5},
		{"one fold", 100, 1},
		{"zero rows", 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := TimeSeriesSplit(tt.n, tt.folds); !errors.Is(err, ErrTooFewRows) {
				t.Errorf("TimeSeriesSplit() error = %v, want ErrTooFewRows", err)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	if got := RMSE(actual, actual); got != 0 {
		t.Errorf("RMSE(perfect) = %v, want 0", got)
	}
	if got := R2(actual, actual); got != 1 {
		t.Errorf("R2(perfect) = %v, want 1", got)
	}
	if got := RMSE(actual, []float64{2, 3, 4, 5}); got != 1 {
		t.Errorf("RMSE(shift by 1) = %v, want 1", got)
	}
	if got := R2(actual, []float64{2.5, 2.5, 2.5, 2.5}); math.Abs(got) > 1e-12 {
		t.Errorf("R2(mean predictor) = %v, want 0", got)
	}
	if !math.IsNaN(RMSE(nil, nil)) {
		t.Error("RMSE(empty) should be NaN")
	}
}

func TestR2_ConstantActual(t *testing.T) {
	tests := []struct {
		name   string
		actual []float64
		pred   []float64
		want   float64
	}{
		{"exact", []float64{5, 5, 5}, []float64{5, 5, 5}, 1},
		{"off", []float64{5, 5, 5}, []float64{5, 5.5, 5}, 0},
		{"single exact", []float64{3}, []float64{3}, 1},
		{"single off", []float64{3}, []float64{4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := R2(tt.actual, tt.pred); got != tt.want {
				t.Errorf("R2() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectBest(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		results []Result
		want    string
		ok      bool
	}{
		{
			name: "lowest rmse wins",
			results: []Result{
				{Name: "a", RMSE: 2, R2: 0.9},
				{Name: "b", RMSE: 1, R2: 0.1},
			},
			want: "b", ok: true,
		},
		{
			name: "rmse tie goes to higher r2",
			results: []Result{
				{Name: "a", RMSE: 1, R2: 0.5},
				{Name: "b", RMSE: 1, R2: 0.7},
			},
			want: "b", ok: true,
		},
		{
			name: "full tie keeps earlier",
			results: []Result{
				{Name: "a", RMSE: 1, R2: 0.5},
				{Name: "b", RMSE: 1, R2: 0.5},
			},
			want: "a", ok: true,
		},
		{
			name: "failed candidates ignored",
			results: []Result{
				{Name: "a", RMSE: math.NaN(), Err: boom},
				{Name: "b", RMSE: 3, R2: 0.2},
			},
			want: "b", ok: true,
		},
		{
			name: "undefined r2 ignored",
			results: []Result{
				{Name: "a", RMSE: 0, R2: math.NaN()},
				{Name: "b", RMSE: 1, R2: 0.4},
			},
			want: "b", ok: true,
		},
		{
			name:    "all failed",
			results: []Result{{Name: "a", RMSE: math.NaN(), Err: boom}},
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectBest(tt.results)
			if ok != tt.ok {
				t.Fatalf("selectBest() ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.Name != tt.want {
				t.Errorf("selectBest() = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestDefaultPanel(t *testing.T) {
	panel := DefaultPanel()
	if err := ValidatePanel(panel); err != nil {
		t.Fatalf("ValidatePanel(DefaultPanel()) error = %v", err)
	}
	if panel[0].Name != "LinearRegression" || panel[len(panel)-1].Kind != models.KindDecomposition {
		t.Errorf("unexpected panel order: first %q, last %q", panel[0].Name, panel[len(panel)-1].Kind)
	}
}

func TestLoadPanel(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "panel.yaml")
	os.WriteFile(good, []byte(`candidates:
  - name: Ridge
    kind: ridge
    params:
      alpha: 0.5
  - name: Forest
    kind: forest
    params: {estimators: 10, max_depth: 4, seed: 7}
`), 0o644)

	panel, err := LoadPanel(good)
	if err != nil {
		t.Fatalf("LoadPanel() error = %v", err)
	}
	if len(panel) != 2 {
		t.Fatalf("len(panel) = %d, want 2", len(panel))
	}
	if panel[0].Params.Alpha != 0.5 {
		t.Errorf("Ridge alpha = %v, want 0.5", panel[0].Params.Alpha)
	}
	if p := panel[1].Params; p.Estimators != 10 || p.MaxDepth != 4 || p.Seed != 7 {
		t.Errorf("Forest params = %+v", p)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"unknown kind", "candidates:\n  - name: X\n    kind: xgboost\n"},
		{"duplicate", "candidates:\n  - {name: A, kind: linear}\n  - {name: A, kind: ridge}\n"},
		{"empty", "candidates: []\n"},
		{"missing name", "candidates:\n  - kind: linear\n"},
		{"invalid yaml", "candidates: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			os.WriteFile(path, []byte(tt.content), 0o644)
			if _, err := LoadPanel(path); err == nil {
				t.Error("LoadPanel() expected error")
			}
		})
	}

	if _, err := LoadPanel(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadPanel() expected error for missing file")
	}
}

func sampleReport() *Report {
	return &Report{
		RunID:    "run-42",
		Duration: 3 * time.Second,
		Results: []Result{
			{Name: "Ridge", Kind: models.KindRidge, RMSE: 1.2, R2: 0.8, Folds: 5},
			{Name: "Lasso", Kind: models.KindLasso, RMSE: math.NaN(), R2: math.NaN(), Err: errors.New("diverged")},
		},
		Best: Result{Name: "Ridge", Kind: models.KindRidge, RMSE: 1.2, R2: 0.8, Folds: 5},
	}
}

func TestLogTracker(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if err := (LogTracker{Logger: logger}).Track(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"candidate evaluated", "candidate=Ridge", "candidate failed", "candidate=Lasso", "best model selected", "run_id=run-42"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestPushTracker(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		body   string
		method string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body, method = r.URL.Path, string(raw), r.Method
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := PushTracker{URL: srv.URL, Job: "trainer"}
	if err := tr.Track(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if !strings.Contains(path, "/metrics/job/trainer") || !strings.Contains(path, "run_id/run-42") {
		t.Errorf("push path = %q", path)
	}
	if !strings.Contains(body, "respond_training_candidate_rmse") {
		t.Error("pushed body does not contain the rmse gauge")
	}
}

func TestPushTracker_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := (PushTracker{URL: srv.URL}).Track(context.Background(), sampleReport()); err == nil {
		t.Error("Track() expected error on gateway failure")
	}
}

type failingTracker struct{ err error }

func (f failingTracker) Track(context.Context, *Report) error { return f.err }

func TestMultiTracker(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	m := MultiTracker{failingTracker{e1}, LogTracker{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, failingTracker{e2}}
	err := m.Track(context.Background(), sampleReport())
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("Track() error = %v, want both errors joined", err)
	}
	if err := (MultiTracker{}).Track(context.Background(), sampleReport()); err != nil {
		t.Errorf("empty MultiTracker error = %v", err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shortSeriesConfig() generator.Config {
	cfg := generator.DefaultConfig()
	cfg.Days = 60
	return cfg
}

func TestTrainer_Train(t *testing.T) {
	series, err := generator.Generate(shortSeriesConfig())
	if err != nil {
		t.Fatal(err)
	}

	panel := []Candidate{
		{Name: "LinearRegression", Kind: models.KindLinear},
		{Name: "Ridge", Kind: models.KindRidge, Params: models.Params{Alpha: 1}},
		{Name: "DecisionTree", Kind: models.KindTree},
		{Name: "Prophet", Kind: models.KindDecomposition, Params: models.Params{Yearly: 1}},
	}
	var tracked *Report
	trainedAt := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	tr := New(panel, quietLogger(),
		WithFolds(3),
		WithTracker(trackerFunc(func(_ context.Context, r *Report) error {
			tracked = r
			return errors.New("tracking is down")
		})),
		WithClock(func() time.Time { return trainedAt }),
	)

	art, report, err := tr.Train(context.Background(), series)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if tracked != report {
		t.Error("tracker did not receive the report")
	}
	if len(report.Results) != len(panel) {
		t.Fatalf("len(Results) = %d, want %d", len(report.Results), len(panel))
	}
	for _, r := range report.Results {
		if !r.OK() {
			t.Errorf("candidate %s failed: %v", r.Name, r.Err)
		}
		if r.RMSE <= 0 || math.IsInf(r.RMSE, 0) {
			t.Errorf("candidate %s RMSE = %v", r.Name, r.RMSE)
		}
	}
	for _, r := range report.Results[:3] {
		if r.Folds != 3 {
			t.Errorf("candidate %s Folds = %d, want 3", r.Name, r.Folds)
		}
	}

	best, _ := selectBest(report.Results)
	if art.Name != best.Name || report.Best.Name != best.Name {
		t.Errorf("artifact %q, report best %q, want %q", art.Name, report.Best.Name, best.Name)
	}
	if art.RunID != report.RunID || art.RunID == "" {
		t.Errorf("artifact RunID = %q, report RunID = %q", art.RunID, report.RunID)
	}
	if !art.TrainedAt.Equal(trainedAt) {
		t.Errorf("TrainedAt = %v, want %v", art.TrainedAt, trainedAt)
	}
	if !models.IsSeriesKind(art.Kind) && len(art.Columns) == 0 {
		t.Error("feature artifact has no columns")
	}

	h, err := models.NewHandle(art)
	if err != nil {
		t.Fatalf("NewHandle() error = %v", err)
	}
	if h.Artifact().Kind != best.Kind {
		t.Errorf("handle kind = %s, want %s", h.Artifact().Kind, best.Kind)
	}
}

func TestTrainer_ConstantSeries(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]dataset.Hourly, 720)
	for i := range series {
		series[i] = dataset.Hourly{Timestamp: start.Add(time.Duration(i) * time.Hour), Leads: 5, CPL: 30, ROI: 0.3}
	}
	panel := []Candidate{
		{Name: "LinearRegression", Kind: models.KindLinear},
		{Name: "Ridge", Kind: models.KindRidge, Params: models.Params{Alpha: 1}},
	}

	art, report, err := New(panel, quietLogger()).Train(context.Background(), series)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	for _, r := range report.Results {
		if math.IsNaN(r.R2) || math.IsInf(r.R2, 0) {
			t.Errorf("candidate %s R2 = %v, want finite", r.Name, r.R2)
		}
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := models.SaveArtifact(path, art); err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	loaded, err := models.LoadArtifact(path)
	if err != nil {
		t.Fatalf("LoadArtifact() error = %v", err)
	}
	if loaded.Name != art.Name || loaded.R2 != art.R2 {
		t.Errorf("loaded %s R2=%v, want %s R2=%v", loaded.Name, loaded.R2, art.Name, art.R2)
	}
}

func TestTrainer_NoViableCandidate(t *testing.T) {
	series, err := generator.Generate(shortSeriesConfig())
	if err != nil {
		t.Fatal(err)
	}
	// more Fourier terms than observations
	panel := []Candidate{{Name: "Prophet", Kind: models.KindDecomposition, Params: models.Params{Yearly: 5000}}}

	_, report, err := New(panel, quietLogger()).Train(context.Background(), series)
	if !errors.Is(err, ErrNoViableCandidate) {
		t.Fatalf("Train() error = %v, want ErrNoViableCandidate", err)
	}
	if report == nil || len(report.Results) != 1 || report.Results[0].Err == nil {
		t.Errorf("report should record the failed candidate, got %+v", report)
	}
}

func TestTrainer_Errors(t *testing.T) {
	series, err := generator.Generate(shortSeriesConfig())
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := New(nil, quietLogger()).Train(context.Background(), series); err == nil {
		t.Error("Train() with empty panel expected error")
	}
	if _, _, err := New(DefaultPanel(), quietLogger()).Train(context.Background(), series[:100]); err == nil {
		t.Error("Train() with too little history expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := New(DefaultPanel(), quietLogger()).Train(ctx, series); !errors.Is(err, context.Canceled) {
		t.Errorf("Train() with cancelled context error = %v, want context.Canceled", err)
	}
}

type trackerFunc func(context.Context, *Report) error

func (f trackerFunc) Track(ctx context.Context, r *Report) error { return f(ctx, r) }
