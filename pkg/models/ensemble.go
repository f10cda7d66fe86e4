package models

import (
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Forest averages independently grown trees.
//
// The forest variant grows each tree on a bootstrap sample with exhaustive
// split search. The extratrees variant grows each tree on all rows and draws
// one random threshold per candidate feature. Both subsample MaxFeatures of the
// columns at every split. Tree i is seeded from (Seed, i), so fits are
// reproducible regardless of scheduling.
type Forest struct {
	Variant     Kind       `json:"variant"`
	Config      TreeConfig `json:"config"`
	Estimators  int        `json:"estimators"`
	MaxFeatures float64    `json:"max_features"`
	Cols        int        `json:"cols"`
	Trees       []*Tree    `json:"trees"`
}

// NewForest creates a bootstrap-aggregated random forest.
func NewForest(cfg TreeConfig, estimators int, maxFeatures float64, seed uint64) *Forest {
	cfg.Seed = seed
	return &Forest{Variant: KindForest, Config: cfg, Estimators: estimators, MaxFeatures: maxFeatures}
}

// NewExtraTrees creates an extremely randomised trees ensemble.
func NewExtraTrees(cfg TreeConfig, estimators int, maxFeatures float64, seed uint64) *Forest {
	cfg.Seed = seed
	return &Forest{Variant: KindExtraTrees, Config: cfg, Estimators: estimators, MaxFeatures: maxFeatures}
}

func (f *Forest) Kind() Kind { return f.Variant }

func (f *Forest) Fit(X [][]float64, y []float64) error {
	cols, err := checkXY(X, y)
	if err != nil {
		return err
	}
	data := binFeatures(X, f.Config.Bins)
	n := len(X)
	maxFeatures := int(math.Round(f.MaxFeatures * float64(cols)))
	random := f.Variant == KindExtraTrees

	trees := make([]*Tree, max(f.Estimators, 1))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(f.Config.Seed, uint64(i)))
			idx := allRows(n)
			if !random {
				for k := range idx {
					idx[k] = rng.IntN(n)
				}
			}
			gr := newGrower(data, y, f.Config, maxFeatures, random, rng)
			trees[i] = &Tree{Config: f.Config, Cols: cols, Nodes: gr.build(idx)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Trees = trees
	f.Cols = cols
	return nil
}

func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkX(X, f.Cols); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		var s float64
		for _, t := range f.Trees {
			s += t.predictRow(row)
		}
		out[i] = s / float64(len(f.Trees))
	}
	return out, nil
}

// GBM is gradient boosting with squared loss: it starts from the target mean
// and adds LearningRate times a shallow tree fitted to the current residuals
// at each stage.
type GBM struct {
	Config       TreeConfig `json:"config"`
	Estimators   int        `json:"estimators"`
	LearningRate float64    `json:"learning_rate"`
	Init         float64    `json:"init"`
	Cols         int        `json:"cols"`
	Trees        []*Tree    `json:"trees"`
}

// NewGBM creates an unfitted gradient boosting model.
func NewGBM(cfg TreeConfig, estimators int, learningRate float64) *GBM {
	return &GBM{Config: cfg, Estimators: estimators, LearningRate: learningRate}
}

func (m *GBM) Kind() Kind { return KindGBM }

func (m *GBM) Fit(X [][]float64, y []float64) error {
	cols, err := checkXY(X, y)
	if err != nil {
		return err
	}
	data := binFeatures(X, m.Config.Bins)

	var init float64
	for _, v := range y {
		init += v
	}
	init /= float64(len(y))

	pred := make([]float64, len(y))
	resid := make([]float64, len(y))
	for i := range pred {
		pred[i] = init
	}

	gr := newGrower(data, resid, m.Config, cols, false, nil)
	trees := make([]*Tree, 0, m.Estimators)
	for range max(m.Estimators, 1) {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		t := &Tree{Config: m.Config, Cols: cols, Nodes: gr.build(allRows(len(X)))}
		for i, row := range X {
			pred[i] += m.LearningRate * t.predictRow(row)
		}
		trees = append(trees, t)
	}

	m.Init = init
	m.Trees = trees
	m.Cols = cols
	return nil
}

func (m *GBM) Predict(X [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkX(X, m.Cols); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := m.Init
		for _, t := range m.Trees {
			v += m.LearningRate * t.predictRow(row)
		}
		out[i] = v
	}
	return out, nil
}
