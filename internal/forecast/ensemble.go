package forecast

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// EnsembleTreeModel fits bagged depth-bounded regression trees on the ordinal
// day encoding. Bootstrap sampling is seeded with a fixed constant, so the
// same series always grows the same forest.
type EnsembleTreeModel struct{}

// Kind identifies the model family
func (EnsembleTreeModel) Kind() ModelKind {
	return ModelEnsemble
}

// Fit grows the forest from bootstrap resamples of the training series
func (EnsembleTreeModel) Fit(train TimeSeries) (FittedModel, error) {
	if train.Len() < MinTrainPoints {
		return nil, &InsufficientDataError{Points: train.Len()}
	}

	xs := encodeDates(train.Dates())
	ys := train.Prices()

	rng := rand.New(rand.NewSource(ensembleSeed))
	trees := make([]*regressionTree, ensembleTrees)
	bx := make([]float64, len(xs))
	by := make([]float64, len(ys))
	for t := range trees {
		for i := range bx {
			j := rng.Intn(len(xs))
			bx[i], by[i] = xs[j], ys[j]
		}
		trees[t] = growTree(bx, by)
	}

	return &fittedEnsemble{trees: trees}, nil
}

type fittedEnsemble struct {
	trees []*regressionTree
}

// Predict averages the per-tree predictions for each target date. Dates
// beyond the training range fall into the outermost leaves, so the forest
// flattens rather than extrapolates.
func (m *fittedEnsemble) Predict(dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	for i, d := range dates {
		x := ordinalDay(d)
		sum := 0.0
		for _, tree := range m.trees {
			sum += tree.predict(x)
		}
		out[i] = sum / float64(len(m.trees))
	}
	return out
}

// regressionTree is a binary regression tree over the single ordinal day
// feature
type regressionTree struct {
	leaf      bool
	value     float64
	threshold float64
	left      *regressionTree
	right     *regressionTree
}

func (t *regressionTree) predict(x float64) float64 {
	for !t.leaf {
		if x < t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

// growTree copies and sorts the sample by x, then splits recursively
func growTree(xs, ys []float64) *regressionTree {
	sx := make([]float64, len(xs))
	sy := make([]float64, len(ys))
	copy(sx, xs)
	copy(sy, ys)
	sort.Sort(xyPairs{xs: sx, ys: sy})
	return splitNode(sx, sy, 0)
}

// splitNode picks the split minimizing the summed squared error of the two
// sides, computed from prefix sums over the sorted sample. Splits never fall
// between equal x values.
func splitNode(xs, ys []float64, depth int) *regressionTree {
	n := len(xs)
	if depth >= ensembleMaxDepth || n < 2*ensembleMinLeaf {
		return &regressionTree{leaf: true, value: stat.Mean(ys, nil)}
	}

	py := make([]float64, n+1)
	py2 := make([]float64, n+1)
	for i := 0; i < n; i++ {
		py[i+1] = py[i] + ys[i]
		py2[i+1] = py2[i] + ys[i]*ys[i]
	}

	bestCost := math.Inf(1)
	bestSplit := -1
	for s := ensembleMinLeaf; s <= n-ensembleMinLeaf; s++ {
		if xs[s-1] == xs[s] {
			continue
		}
		nl, nr := float64(s), float64(n-s)
		left := py2[s] - py[s]*py[s]/nl
		right := (py2[n] - py2[s]) - (py[n]-py[s])*(py[n]-py[s])/nr
		if cost := left + right; cost < bestCost {
			bestCost = cost
			bestSplit = s
		}
	}
	if bestSplit < 0 {
		return &regressionTree{leaf: true, value: stat.Mean(ys, nil)}
	}

	return &regressionTree{
		threshold: (xs[bestSplit-1] + xs[bestSplit]) / 2,
		left:      splitNode(xs[:bestSplit], ys[:bestSplit], depth+1),
		right:     splitNode(xs[bestSplit:], ys[bestSplit:], depth+1),
	}
}

type xyPairs struct {
	xs, ys []float64
}

func (p xyPairs) Len() int           { return len(p.xs) }
func (p xyPairs) Less(i, j int) bool { return p.xs[i] < p.xs[j] }
func (p xyPairs) Swap(i, j int) {
	p.xs[i], p.xs[j] = p.xs[j], p.xs[i]
	p.ys[i], p.ys[j] = p.ys[j], p.ys[i]
}
