package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HatiCode/respond/pkg/features"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("xgboost"); !errors.Is(err, ErrUnknown) {
		t.Errorf("ParseKind(xgboost) error = %v, want ErrUnknown", err)
	}
}

func TestArtifact_RoundTrip(t *testing.T) {
	X, y := linearData(150, 21)
	probe := [][]float64{{1, 2, 0}, {8, 0.5, 1}}
	cols := []string{"a", "b", "c"}

	for _, kind := range Kinds {
		if IsSeriesKind(kind) {
			continue
		}
		t.Run(string(kind), func(t *testing.T) {
			m, err := NewRegressor(kind, Params{Estimators: 5})
			if err != nil {
				t.Fatal(err)
			}
			if err := m.Fit(X, y); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			want, _ := m.Predict(probe)

			path := filepath.Join(t.TempDir(), "model.json")
			art := &Artifact{
				RunID:     "run-1",
				Name:      "candidate",
				Kind:      kind,
				TrainedAt: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
				Columns:   cols,
				Lags:      []int{1},
				Windows:   []int{2},
				RMSE:      1.5,
				R2:        0.9,
				Model:     m,
			}
			if err := SaveArtifact(path, art); err != nil {
				t.Fatalf("SaveArtifact() error = %v", err)
			}

			h, err := LoadHandle(path)
			if err != nil {
				t.Fatalf("LoadHandle() error = %v", err)
			}
			got, err := h.PredictFrame(features.Frame{Columns: cols, Rows: probe})
			if err != nil {
				t.Fatalf("PredictFrame() error = %v", err)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("prediction %d after reload = %v, want %v", i, got[i], want[i])
				}
			}

			meta := h.Artifact()
			if meta.Kind != kind || meta.RunID != "run-1" || meta.RMSE != 1.5 || !meta.TrainedAt.Equal(art.TrainedAt) {
				t.Errorf("Artifact() = %+v", meta)
			}
			if h.IsSeries() {
				t.Error("IsSeries() = true for a feature model")
			}
		})
	}
}

func TestArtifact_SeriesRoundTrip(t *testing.T) {
	ts, y := seasonalSeries(24 * 30)
	m := NewDecomposition(4, 3, 2)
	if err := m.FitSeries(ts, y); err != nil {
		t.Fatal(err)
	}
	want, _ := m.PredictAt(ts[:3])

	path := filepath.Join(t.TempDir(), "nested", "model.json")
	if err := SaveArtifact(path, &Artifact{Name: "Prophet", Kind: KindDecomposition, Model: m}); err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	h, err := LoadHandle(path)
	if err != nil {
		t.Fatalf("LoadHandle() error = %v", err)
	}
	if !h.IsSeries() {
		t.Fatal("IsSeries() = false for decomposition")
	}
	got, err := h.PredictAt(ts[:3])
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PredictAt()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if _, err := h.PredictFrame(features.Frame{}); !errors.Is(err, ErrCapability) {
		t.Errorf("PredictFrame() on series model error = %v, want ErrCapability", err)
	}
}

func TestLoadArtifact_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadArtifact(filepath.Join(dir, "missing.json")); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("LoadArtifact() missing error = %v, want ErrArtifactNotFound", err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"version":1,"kind":"prophet9000","params":{}}`), 0o644)
	if _, err := LoadArtifact(bad); !errors.Is(err, ErrUnknown) {
		t.Errorf("LoadArtifact() unknown kind error = %v, want ErrUnknown", err)
	}

	garbage := filepath.Join(dir, "garbage.json")
	os.WriteFile(garbage, []byte("not json"), 0o644)
	if _, err := LoadArtifact(garbage); err == nil {
		t.Error("LoadArtifact() expected error for invalid json")
	}

	if err := SaveArtifact(filepath.Join(dir, "x.json"), &Artifact{}); !errors.Is(err, ErrNotFitted) {
		t.Errorf("SaveArtifact() without model error = %v, want ErrNotFitted", err)
	}
}

func TestHandle_ColumnMismatch(t *testing.T) {
	X, y := linearData(50, 3)
	m := NewLinear()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	h, err := NewHandle(&Artifact{Kind: KindLinear, Columns: []string{"a", "b", "c"}, Model: m})
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.PredictFrame(features.Frame{Columns: []string{"a", "c", "b"}, Rows: [][]float64{{1, 2, 3}}})
	if !errors.Is(err, ErrShape) {
		t.Errorf("PredictFrame() error = %v, want ErrShape", err)
	}
	if _, err := h.PredictAt([]time.Time{time.Now()}); !errors.Is(err, ErrCapability) {
		t.Errorf("PredictAt() on feature model error = %v, want ErrCapability", err)
	}

	if _, err := NewHandle(&Artifact{Kind: KindLinear, Model: m}); !errors.Is(err, ErrShape) {
		t.Errorf("NewHandle() without columns error = %v, want ErrShape", err)
	}

	b := h.Builder()
	if len(b.Lags) != len(features.DefaultLags) {
		t.Errorf("Builder() without stored lags should use defaults, got %v", b.Lags)
	}
}
