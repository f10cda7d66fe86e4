// Package models implements the regression models evaluated by the trainer and
// served by the dashboard API.
//
// Two capabilities exist. A Regressor learns from feature rows built by the
// features package. A SeriesModel learns directly from (timestamp, value)
// pairs and can predict at arbitrary timestamps. The decomposition model is the
// only SeriesModel; callers branch on it explicitly.
package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFitted = errors.New("model is not fitted")
	ErrShape     = errors.New("mismatched input dimensions")
	ErrSingular  = errors.New("linear system is singular")
	ErrUnknown   = errors.New("unknown model kind")
)

// Kind identifies a model variant.
type Kind string

const (
	KindLinear        Kind = "linear"
	KindRidge         Kind = "ridge"
	KindLasso         Kind = "lasso"
	KindTree          Kind = "tree"
	KindForest        Kind = "forest"
	KindExtraTrees    Kind = "extratrees"
	KindGBM           Kind = "gbm"
	KindDecomposition Kind = "decomposition"
)

// Kinds lists every supported kind.
var Kinds = []Kind{
	KindLinear, KindRidge, KindLasso,
	KindTree, KindForest, KindExtraTrees, KindGBM,
	KindDecomposition,
}

// ParseKind validates s as a model kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, s)
}

// Regressor is a model trained on feature rows.
type Regressor interface {
	Kind() Kind
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// SeriesModel is a model trained on a timestamped series.
type SeriesModel interface {
	Kind() Kind
	FitSeries(ts []time.Time, y []float64) error
	PredictAt(ts []time.Time) ([]float64, error)
}

// Params holds the hyperparameters of every kind. Zero values select the
// defaults documented on each field; fields irrelevant to a kind are ignored.
type Params struct {
	// Alpha is the regularisation strength (ridge 1.0, lasso 0.01).
	Alpha float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	// MaxDepth limits tree depth (tree 6, forest and extratrees 10, gbm 3).
	MaxDepth int `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	// MinSamplesLeaf is the minimum rows per leaf (1).
	MinSamplesLeaf int `json:"min_samples_leaf,omitempty" yaml:"min_samples_leaf,omitempty"`
	// Estimators is the ensemble size (forest and extratrees 50, gbm 100).
	Estimators int `json:"estimators,omitempty" yaml:"estimators,omitempty"`
	// MaxFeatures is the fraction of features tried per split (1.0).
	MaxFeatures float64 `json:"max_features,omitempty" yaml:"max_features,omitempty"`
	// LearningRate shrinks each boosting stage (0.1).
	LearningRate float64 `json:"learning_rate,omitempty" yaml:"learning_rate,omitempty"`
	// Bins caps the quantile bins per feature for tree splits (64).
	Bins int `json:"bins,omitempty" yaml:"bins,omitempty"`
	// Seed drives bootstrapping and random thresholds.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	// Daily, Weekly and Yearly are Fourier orders for decomposition (4, 3, 10).
	Daily  int `json:"daily,omitempty" yaml:"daily,omitempty"`
	Weekly int `json:"weekly,omitempty" yaml:"weekly,omitempty"`
	Yearly int `json:"yearly,omitempty" yaml:"yearly,omitempty"`
}

const defaultSeed = 42

// New returns an unfitted model of the given kind. The result implements
// Regressor for feature kinds and SeriesModel for KindDecomposition.
func New(kind Kind, p Params) (any, error) {
	switch kind {
	case KindLinear:
		return NewLinear(), nil
	case KindRidge:
		return NewRidge(orFloat(p.Alpha, 1.0)), nil
	case KindLasso:
		return NewLasso(orFloat(p.Alpha, 0.01)), nil
	case KindTree:
		return NewTree(treeConfigFrom(p, 6)), nil
	case KindForest:
		return NewForest(treeConfigFrom(p, 10), orInt(p.Estimators, 50), orFloat(p.MaxFeatures, 1.0), orSeed(p.Seed)), nil
	case KindExtraTrees:
		return NewExtraTrees(treeConfigFrom(p, 10), orInt(p.Estimators, 50), orFloat(p.MaxFeatures, 1.0), orSeed(p.Seed)), nil
	case KindGBM:
		return NewGBM(treeConfigFrom(p, 3), orInt(p.Estimators, 100), orFloat(p.LearningRate, 0.1)), nil
	case KindDecomposition:
		return NewDecomposition(orInt(p.Daily, 4), orInt(p.Weekly, 3), orInt(p.Yearly, 10)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, kind)
	}
}

// NewRegressor is New restricted to feature kinds.
func NewRegressor(kind Kind, p Params) (Regressor, error) {
	m, err := New(kind, p)
	if err != nil {
		return nil, err
	}
	r, ok := m.(Regressor)
	if !ok {
		return nil, fmt.Errorf("kind %q is not a feature regressor", kind)
	}
	return r, nil
}

// IsSeriesKind reports whether kind is trained on the raw series.
func IsSeriesKind(kind Kind) bool {
	return kind == KindDecomposition
}

func treeConfigFrom(p Params, depth int) TreeConfig {
	return TreeConfig{
		MaxDepth:       orInt(p.MaxDepth, depth),
		MinSamplesLeaf: orInt(p.MinSamplesLeaf, 1),
		Bins:           orInt(p.Bins, 64),
		Seed:           orSeed(p.Seed),
	}
}

func orFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orSeed(v uint64) uint64 {
	if v == 0 {
		return defaultSeed
	}
	return v
}

// checkXY validates a training matrix and target and returns the column count.
func checkXY(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no training rows", ErrShape)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	cols := len(X[0])
	if cols == 0 {
		return 0, fmt.Errorf("%w: no feature columns", ErrShape)
	}
	for i, row := range X {
		if len(row) != cols {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), cols)
		}
	}
	return cols, nil
}

// checkX validates a prediction matrix against the fitted column count.
func checkX(X [][]float64, cols int) error {
	for i, row := range X {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), cols)
		}
	}
	return nil
}
