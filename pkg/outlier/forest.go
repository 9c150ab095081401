// Package outlier flags entities whose feature profile deviates from the
// current batch population. Detection is batch-local: the model is refit on
// every call and no state survives between batches.
package outlier

import (
	"fmt"
	"math"
	"math/rand"
)

// IsolationForest isolates anomalies by random axis-aligned splits; points
// that isolate in few splits are outliers. Randomness comes from an injected
// source so scoring is reproducible for a fixed seed.
type IsolationForest struct {
	trees      []*isoTree
	numTrees   int
	sampleSize int
	fitSize    int
	maxDepth   int
	rng        *rand.Rand
}

type isoTree struct {
	root *isoNode
}

type isoNode struct {
	splitFeature int
	splitValue   float64
	left         *isoNode
	right        *isoNode
	size         int
}

// NewIsolationForest creates a forest with the given ensemble size and
// per-tree subsample size.
func NewIsolationForest(numTrees, sampleSize int, seed int64) *IsolationForest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &IsolationForest{
		numTrees:   numTrees,
		sampleSize: sampleSize,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Fit builds the ensemble over the given rows. Path normalization uses the
// effective per-tree sample size, which is capped by the batch size.
func (f *IsolationForest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("no training data provided")
	}
	f.fitSize = f.sampleSize
	if len(data) < f.fitSize {
		f.fitSize = len(data)
	}
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.fitSize))))
	f.trees = make([]*isoTree, f.numTrees)
	for i := 0; i < f.numTrees; i++ {
		sample := f.subsample(data)
		f.trees[i] = &isoTree{root: f.buildNode(sample, 0)}
	}
	return nil
}

// AnomalyScore returns the standard isolation score in (0,1]; higher means
// more anomalous.
func (f *IsolationForest) AnomalyScore(row []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLen(tree.root, row, 0)
	}
	avg := total / float64(len(f.trees))
	c := expectedPathLength(f.fitSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avg/c)
}

// DecisionFunction mirrors the sklearn convention: 0.5 minus the anomaly
// score, so negative values mark outliers.
func (f *IsolationForest) DecisionFunction(row []float64) float64 {
	return 0.5 - f.AnomalyScore(row)
}

func (f *IsolationForest) subsample(data [][]float64) [][]float64 {
	if len(data) <= f.sampleSize {
		return data
	}
	sample := make([][]float64, f.sampleSize)
	for i := range sample {
		sample[i] = data[f.rng.Intn(len(data))]
	}
	return sample
}

func (f *IsolationForest) buildNode(data [][]float64, depth int) *isoNode {
	if len(data) <= 1 || depth >= f.maxDepth {
		return &isoNode{size: len(data)}
	}

	featureIdx := f.rng.Intn(len(data[0]))
	lo, hi := featureRange(data, featureIdx)
	if lo == hi {
		return &isoNode{size: len(data)}
	}
	split := lo + f.rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range data {
		if row[featureIdx] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &isoNode{
		splitFeature: featureIdx,
		splitValue:   split,
		size:         len(data),
		left:         f.buildNode(left, depth+1),
		right:        f.buildNode(right, depth+1),
	}
}

func pathLen(n *isoNode, row []float64, depth int) float64 {
	if n.left == nil && n.right == nil {
		return float64(depth) + expectedPathLength(n.size)
	}
	if row[n.splitFeature] < n.splitValue {
		return pathLen(n.left, row, depth+1)
	}
	return pathLen(n.right, row, depth+1)
}

func featureRange(data [][]float64, idx int) (float64, float64) {
	lo, hi := data[0][idx], data[0][idx]
	for _, row := range data {
		if row[idx] < lo {
			lo = row[idx]
		}
		if row[idx] > hi {
			hi = row[idx]
		}
	}
	return lo, hi
}

// expectedPathLength is c(n), the average BST unsuccessful-search depth.
func expectedPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	const eulerMascheroni = 0.5772156649
	h := math.Log(float64(n-1)) + eulerMascheroni
	return 2.0*h - 2.0*float64(n-1)/float64(n)
}

// StandardScaler normalizes columns to zero mean and unit variance.
type StandardScaler struct {
	mean []float64
	std  []float64
}

// Fit computes column statistics over the batch.
func (s *StandardScaler) Fit(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("no data provided")
	}
	cols := len(data[0])
	s.mean = make([]float64, cols)
	s.std = make([]float64, cols)

	for _, row := range data {
		for i, v := range row {
			s.mean[i] += v
		}
	}
	for i := range s.mean {
		s.mean[i] /= float64(len(data))
	}
	for _, row := range data {
		for i, v := range row {
			d := v - s.mean[i]
			s.std[i] += d * d
		}
	}
	for i := range s.std {
		s.std[i] = math.Sqrt(s.std[i] / float64(len(data)))
		if s.std[i] == 0 {
			s.std[i] = 1.0
		}
	}
	return nil
}

// Transform scales rows using the fitted statistics.
func (s *StandardScaler) Transform(data [][]float64) ([][]float64, error) {
	if len(s.mean) == 0 {
		return nil, fmt.Errorf("scaler not fitted")
	}
	out := make([][]float64, len(data))
	for i, row := range data {
		scaled := make([]float64, len(row))
		for j, v := range row {
			if j < len(s.mean) {
				scaled[j] = (v - s.mean[j]) / s.std[j]
			} else {
				scaled[j] = v
			}
		}
		out[i] = scaled
	}
	return out, nil
}
