package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/HatiCode/respond/internal/fsutil"
	"github.com/HatiCode/respond/pkg/features"
)

const artifactVersion = 1

var (
	ErrArtifactNotFound = errors.New("model artifact not found")
	ErrCapability       = errors.New("model does not support this prediction mode")
)

// Artifact is a trained model together with what is needed to serve it.
// Model holds a Regressor or, for KindDecomposition, a SeriesModel.
type Artifact struct {
	RunID     string
	Name      string
	Kind      Kind
	TrainedAt time.Time
	Columns   []string
	Lags      []int
	Windows   []int
	RMSE      float64
	R2        float64
	Model     any
}

type envelope struct {
	Version   int             `json:"version"`
	RunID     string          `json:"run_id"`
	Name      string          `json:"name"`
	Kind      Kind            `json:"kind"`
	TrainedAt time.Time       `json:"trained_at"`
	Columns   []string        `json:"columns,omitempty"`
	Lags      []int           `json:"lags,omitempty"`
	Windows   []int           `json:"windows,omitempty"`
	RMSE      float64         `json:"rmse"`
	R2        float64         `json:"r2"`
	Params    json.RawMessage `json:"params"`
}

// SaveArtifact writes a to path, atomically replacing any previous file.
func SaveArtifact(path string, a *Artifact) error {
	if a == nil || a.Model == nil {
		return fmt.Errorf("%w: nothing to save", ErrNotFitted)
	}
	params, err := json.Marshal(a.Model)
	if err != nil {
		return fmt.Errorf("encode %s model: %w", a.Kind, err)
	}
	env := envelope{
		Version:   artifactVersion,
		RunID:     a.RunID,
		Name:      a.Name,
		Kind:      a.Kind,
		TrainedAt: a.TrainedAt.UTC(),
		Columns:   a.Columns,
		Lags:      a.Lags,
		Windows:   a.Windows,
		RMSE:      a.RMSE,
		R2:        a.R2,
		Params:    params,
	}
	return fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(env)
	})
}

// LoadArtifact reads an artifact written by SaveArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var env envelope
	if err := json.NewDecoder(f).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if env.Version != artifactVersion {
		return nil, fmt.Errorf("artifact %s has version %d, want %d", path, env.Version, artifactVersion)
	}

	m, err := New(env.Kind, Params{})
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(env.Params, m); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", env.Kind, err)
	}

	return &Artifact{
		RunID:     env.RunID,
		Name:      env.Name,
		Kind:      env.Kind,
		TrainedAt: env.TrainedAt,
		Columns:   env.Columns,
		Lags:      env.Lags,
		Windows:   env.Windows,
		RMSE:      env.RMSE,
		R2:        env.R2,
		Model:     m,
	}, nil
}

// Handle is a loaded model ready for serving. It is never mutated after
// construction; a reload builds a new Handle.
type Handle struct {
	art    Artifact
	reg    Regressor
	series SeriesModel
}

// NewHandle wraps a.
func NewHandle(a *Artifact) (*Handle, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil artifact", ErrNotFitted)
	}
	h := &Handle{art: *a}
	h.art.Columns = slices.Clone(a.Columns)
	h.art.Lags = slices.Clone(a.Lags)
	h.art.Windows = slices.Clone(a.Windows)

	switch m := a.Model.(type) {
	case SeriesModel:
		h.series = m
	case Regressor:
		if len(a.Columns) == 0 {
			return nil, fmt.Errorf("%w: %s artifact has no feature columns", ErrShape, a.Kind)
		}
		h.reg = m
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknown, a.Model)
	}
	return h, nil
}

// LoadHandle reads the artifact at path and wraps it.
func LoadHandle(path string) (*Handle, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewHandle(a)
}

// Artifact returns the metadata of the loaded model.
func (h *Handle) Artifact() Artifact {
	return h.art
}

// IsSeries reports whether the model predicts from timestamps only.
func (h *Handle) IsSeries() bool {
	return h.series != nil
}

// Builder returns a feature builder matching the training configuration.
func (h *Handle) Builder() *features.Builder {
	if len(h.art.Lags) == 0 && len(h.art.Windows) == 0 {
		return features.NewBuilder()
	}
	return &features.Builder{
		Lags:    slices.Clone(h.art.Lags),
		Windows: slices.Clone(h.art.Windows),
	}
}

// PredictFrame predicts one value per row of frame. The frame columns must
// match the training columns exactly.
func (h *Handle) PredictFrame(frame features.Frame) ([]float64, error) {
	if h.reg == nil {
		return nil, fmt.Errorf("%w: %s predicts from timestamps", ErrCapability, h.art.Kind)
	}
	if !slices.Equal(frame.Columns, h.art.Columns) {
		return nil, fmt.Errorf("%w: frame columns %v, model trained on %v", ErrShape, frame.Columns, h.art.Columns)
	}
	return h.reg.Predict(frame.Rows)
}

// PredictAt predicts one value per timestamp.
func (h *Handle) PredictAt(ts []time.Time) ([]float64, error) {
	if h.series == nil {
		return nil, fmt.Errorf("%w: %s predicts from feature rows", ErrCapability, h.art.Kind)
	}
	return h.series.PredictAt(ts)
}
