package models

import (
	"math/rand/v2"
	"slices"
	"sort"
)

const (
	maxBinsLimit = 256
	minGain      = 1e-12
)

// TreeConfig controls how a single regression tree is grown.
type TreeConfig struct {
	MaxDepth       int    `json:"max_depth"`
	MinSamplesLeaf int    `json:"min_samples_leaf"`
	Bins           int    `json:"bins"`
	Seed           uint64 `json:"seed,omitempty"`
}

// Node is one node of a flattened tree. A node with Left == 0 is a leaf,
// since the root can never be a child.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree minimising squared error.
//
// Candidate thresholds come from per-feature quantile bins, so a split search
// costs one histogram pass over the node's rows per feature. Rows with
// x[Feature] <= Threshold go left.
type Tree struct {
	Config TreeConfig `json:"config"`
	Cols   int        `json:"cols"`
	Nodes  []Node     `json:"nodes"`
}

// NewTree creates an unfitted decision tree.
func NewTree(cfg TreeConfig) *Tree {
	return &Tree{Config: cfg}
}

func (t *Tree) Kind() Kind { return KindTree }

func (t *Tree) Fit(X [][]float64, y []float64) error {
	cols, err := checkXY(X, y)
	if err != nil {
		return err
	}
	data := binFeatures(X, t.Config.Bins)
	g := newGrower(data, y, t.Config, cols, false, nil)
	t.Nodes = g.build(allRows(len(X)))
	t.Cols = cols
	return nil
}

func (t *Tree) Predict(X [][]float64) ([]float64, error) {
	if len(t.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkX(X, t.Cols); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = t.predictRow(row)
	}
	return out, nil
}

func (t *Tree) predictRow(row []float64) float64 {
	n := &t.Nodes[0]
	for n.Left != 0 {
		if row[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Value
}

// binned is a column-major matrix of bin codes. For feature j, a value x gets
// code k where k is the first index with x <= cuts[j][k], or len(cuts[j]).
type binned struct {
	codes [][]uint8
	cuts  [][]float64
}

func binFeatures(X [][]float64, maxBins int) *binned {
	maxBins = min(max(maxBins, 2), maxBinsLimit)
	n, p := len(X), len(X[0])

	b := &binned{
		codes: make([][]uint8, p),
		cuts:  make([][]float64, p),
	}
	col := make([]float64, n)
	for j := range p {
		for i, row := range X {
			col[i] = row[j]
		}
		sorted := slices.Clone(col)
		slices.Sort(sorted)
		cuts := cutPoints(sorted, maxBins)

		codes := make([]uint8, n)
		for i, v := range col {
			codes[i] = uint8(sort.SearchFloat64s(cuts, v))
		}
		b.codes[j] = codes
		b.cuts[j] = cuts
	}
	return b
}

// cutPoints returns at most maxBins-1 increasing thresholds for sorted values.
func cutPoints(sorted []float64, maxBins int) []float64 {
	uniq := slices.Compact(slices.Clone(sorted))
	if len(uniq) <= 1 {
		return nil
	}
	if len(uniq) <= maxBins {
		cuts := make([]float64, len(uniq)-1)
		for k := range cuts {
			cuts[k] = (uniq[k] + uniq[k+1]) / 2
		}
		return cuts
	}

	top := uniq[len(uniq)-1]
	cuts := make([]float64, 0, maxBins-1)
	for k := 1; k < maxBins; k++ {
		q := sorted[k*len(sorted)/maxBins]
		if q >= top {
			break
		}
		if len(cuts) == 0 || q > cuts[len(cuts)-1] {
			cuts = append(cuts, q)
		}
	}
	return cuts
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// grower builds one tree over binned data.
type grower struct {
	data        *binned
	y           []float64
	cfg         TreeConfig
	maxFeatures int
	random      bool
	rng         *rand.Rand

	nodes []Node
	sum   [maxBinsLimit]float64
	cnt   [maxBinsLimit]int
	order []int
}

func newGrower(data *binned, y []float64, cfg TreeConfig, maxFeatures int, random bool, rng *rand.Rand) *grower {
	return &grower{
		data:        data,
		y:           y,
		cfg:         cfg,
		maxFeatures: min(max(maxFeatures, 1), len(data.codes)),
		random:      random,
		rng:         rng,
		order:       allRows(len(data.codes)),
	}
}

func (g *grower) build(idx []int) []Node {
	g.nodes = g.nodes[:0]
	g.grow(idx, 0)
	return slices.Clone(g.nodes)
}

func (g *grower) grow(idx []int, depth int) int {
	id := len(g.nodes)
	var s float64
	for _, i := range idx {
		s += g.y[i]
	}
	g.nodes = append(g.nodes, Node{Value: s / float64(len(idx))})

	minLeaf := max(g.cfg.MinSamplesLeaf, 1)
	if depth >= g.cfg.MaxDepth || len(idx) < 2*minLeaf {
		return id
	}
	feature, bin, ok := g.split(idx, s, minLeaf)
	if !ok {
		return id
	}

	codes := g.data.codes[feature]
	k := 0
	for i := range idx {
		if codes[idx[i]] <= bin {
			idx[i], idx[k] = idx[k], idx[i]
			k++
		}
	}

	left := g.grow(idx[:k], depth+1)
	right := g.grow(idx[k:], depth+1)
	g.nodes[id].Feature = feature
	g.nodes[id].Threshold = g.data.cuts[feature][bin]
	g.nodes[id].Left = left
	g.nodes[id].Right = right
	return id
}

// split finds the feature and bin maximising the squared-error reduction.
// Rows with code <= bin go left.
func (g *grower) split(idx []int, total float64, minLeaf int) (int, uint8, bool) {
	n := float64(len(idx))
	parent := total * total / n
	bestGain, bestFeature, bestBin := minGain, -1, uint8(0)

	features := g.order
	if g.maxFeatures < len(g.order) && g.rng != nil {
		g.rng.Shuffle(len(g.order), func(i, j int) { g.order[i], g.order[j] = g.order[j], g.order[i] })
		features = g.order[:g.maxFeatures]
	}

	for _, f := range features {
		nb := len(g.data.cuts[f]) + 1
		if nb < 2 {
			continue
		}
		clear(g.sum[:nb])
		clear(g.cnt[:nb])
		codes := g.data.codes[f]
		for _, i := range idx {
			c := codes[i]
			g.sum[c] += g.y[i]
			g.cnt[c]++
		}

		lo, hi := 0, nb-1
		for lo < nb && g.cnt[lo] == 0 {
			lo++
		}
		for hi > lo && g.cnt[hi] == 0 {
			hi--
		}
		if lo >= hi {
			continue
		}

		first, last := lo, hi-1
		if g.random {
			first = lo + g.rng.IntN(hi-lo)
			last = first
		}

		var sl float64
		var nl int
		for b := 0; b < first; b++ {
			sl += g.sum[b]
			nl += g.cnt[b]
		}
		for b := first; b <= last; b++ {
			sl += g.sum[b]
			nl += g.cnt[b]
			nr := len(idx) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			sr := total - sl
			gain := sl*sl/float64(nl) + sr*sr/float64(nr) - parent
			if gain > bestGain {
				bestGain, bestFeature, bestBin = gain, f, uint8(b)
			}
		}
	}
	return bestFeature, bestBin, bestFeature >= 0
}
