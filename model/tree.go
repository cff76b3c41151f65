package model

import (
	"container/heap"
	"math"
	"sort"

	"github.com/thalesfsp/regtune"
	"gonum.org/v1/gonum/stat"
)

//////
// Const, vars, types.
//////

const (
	// leafNode marks a node without a split.
	leafNode = -1

	// minGain is the smallest loss reduction accepted as a split.
	minGain = 1e-12

	// defaultMaxBins matches the usual histogram size of boosting libraries.
	defaultMaxBins = 255
)

// growConfig controls how a single tree is grown from gradient statistics.
// All trees fit the second-order approximation of the loss: a leaf holding
// gradient sum G and hessian sum H predicts -G / (H + lambda).
type growConfig struct {
	// maxDepth caps the depth of the tree (root = 0). Zero or less means
	// unlimited.
	maxDepth int

	// maxLeaves caps the number of leaves. Zero or less means unlimited.
	// Nodes are split best-gain first, so a cap yields leaf-wise trees.
	maxLeaves int

	// minSamplesSplit is the minimum row count of a node to be split.
	minSamplesSplit int

	// minSamplesLeaf is the minimum row count of each child.
	minSamplesLeaf int

	// minChildWeight is the minimum hessian sum of each child.
	minChildWeight float64

	// lambda is the L2 penalty on leaf values.
	lambda float64

	// gamma is the minimum loss reduction required to split.
	gamma float64

	// shrinkage multiplies every leaf value (the learning rate).
	shrinkage float64
}

// node is one element of a flattened tree. Rows with
// x[feature] <= threshold go left.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// tree is a regression tree stored as a flat node slice; node 0 is the root.
type tree struct {
	Nodes []node `json:"nodes"`
}

// split describes the best partition of a node.
type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

// splitter finds the best split of a set of rows.
type splitter interface {
	best(rows []int, grad, hess []float64, cfg *growConfig) (split, bool)
}

// candidate is a grown leaf waiting to be split.
type candidate struct {
	node  int
	depth int
	split split
}

// candidateQueue orders candidates by gain, then by node index so growth is
// deterministic.
type candidateQueue []*candidate

//////
// candidateQueue implements heap.Interface.
//////

func (q candidateQueue) Len() int { return len(q) }

func (q candidateQueue) Less(i, j int) bool {
	if q[i].split.gain != q[j].split.gain {
		return q[i].split.gain > q[j].split.gain
	}

	return q[i].node < q[j].node
}

func (q candidateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue) Push(x any) { *q = append(*q, x.(*candidate)) }

func (q *candidateQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]

	return item
}

//////
// Methods.
//////

// predictRow walks the tree for one row.
func (t *tree) predictRow(row []float64) float64 {
	i := 0
	for t.Nodes[i].Feature != leafNode {
		n := t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}

	return t.Nodes[i].Value
}

// leaves counts the leaf nodes.
func (t *tree) leaves() int {
	var n int

	for _, nd := range t.Nodes {
		if nd.Feature == leafNode {
			n++
		}
	}

	return n
}

// depth returns the length of the longest root-to-leaf path.
func (t *tree) depth() int {
	var walk func(i int) int

	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature == leafNode {
			return 0
		}

		return 1 + max(walk(n.Left), walk(n.Right))
	}

	return walk(0)
}

// leafValue returns the shrunk optimal value of a leaf.
func (cfg *growConfig) leafValue(g, h float64) float64 {
	return -g / (h + cfg.lambda) * cfg.shrinkage
}

// score is the structure score G² / (H + lambda) of a leaf.
func (cfg *growConfig) score(g, h float64) float64 {
	return g * g / (h + cfg.lambda)
}

// gain is the loss reduction of splitting (g, h) into left and right.
func (cfg *growConfig) gain(gl, hl, gr, hr float64) float64 {
	return 0.5*(cfg.score(gl, hl)+cfg.score(gr, hr)-cfg.score(gl+gr, hl+hr)) - cfg.gamma
}

// admissible reports whether both children satisfy the size and weight
// constraints.
func (cfg *growConfig) admissible(nl, nr int, hl, hr float64) bool {
	return nl >= cfg.minSamplesLeaf && nr >= cfg.minSamplesLeaf &&
		hl >= cfg.minChildWeight && hr >= cfg.minChildWeight
}

//////
// Exact splitter.
//////

// exactSplitter evaluates every threshold between consecutive distinct
// values of every feature.
type exactSplitter struct {
	x regtune.FeatureMatrix
}

func (s *exactSplitter) best(rows []int, grad, hess []float64, cfg *growConfig) (split, bool) {
	var gTotal, hTotal float64

	for _, r := range rows {
		gTotal += grad[r]
		hTotal += hess[r]
	}

	bestSplit := split{gain: minGain}
	found := false

	sorted := make([]int, len(rows))

	for f := 0; f < s.x.Cols(); f++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			return s.x[sorted[i]][f] < s.x[sorted[j]][f]
		})

		var gl, hl float64

		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			gl += grad[r]
			hl += hess[r]

			v, next := s.x[r][f], s.x[sorted[i+1]][f]
			if v == next {
				continue
			}

			nl := i + 1
			if !cfg.admissible(nl, len(sorted)-nl, hl, hTotal-hl) {
				continue
			}

			if g := cfg.gain(gl, hl, gTotal-gl, hTotal-hl); g > bestSplit.gain {
				bestSplit = split{feature: f, threshold: v + (next-v)/2, gain: g}
				found = true
			}
		}
	}

	if !found {
		return split{}, false
	}

	bestSplit.left, bestSplit.right = partition(s.x, rows, bestSplit.feature, bestSplit.threshold)

	return bestSplit, true
}

//////
// Histogram splitter.
//////

// histogramSplitter buckets every feature into at most maxBins quantile bins
// once, then evaluates only bin boundaries.
type histogramSplitter struct {
	x     regtune.FeatureMatrix
	edges [][]float64
	bins  [][]uint16
}

// newHistogramSplitter computes the bin edges of every column of x. Bin b
// holds values in (edges[b-1], edges[b]]; the last edge is +Inf.
func newHistogramSplitter(x regtune.FeatureMatrix, maxBins int) *histogramSplitter {
	if maxBins < 2 {
		maxBins = defaultMaxBins
	}

	s := &histogramSplitter{
		x:     x,
		edges: make([][]float64, x.Cols()),
		bins:  make([][]uint16, x.Cols()),
	}

	for f := range s.edges {
		col := x.Column(f)
		sort.Float64s(col)

		distinct := col[:0:0]
		for i, v := range col {
			if i == 0 || v != col[i-1] {
				distinct = append(distinct, v)
			}
		}

		var edges []float64

		if len(distinct) <= maxBins {
			for i := 0; i < len(distinct)-1; i++ {
				edges = append(edges, distinct[i]+(distinct[i+1]-distinct[i])/2)
			}
		} else {
			for k := 1; k < maxBins; k++ {
				q := stat.Quantile(float64(k)/float64(maxBins), stat.Empirical, col, nil)
				if len(edges) == 0 || q > edges[len(edges)-1] {
					edges = append(edges, q)
				}
			}
		}

		edges = append(edges, math.Inf(1))
		s.edges[f] = edges

		s.bins[f] = make([]uint16, x.Rows())
		for i, row := range x {
			s.bins[f][i] = uint16(sort.SearchFloat64s(edges, row[f]))
		}
	}

	return s
}

func (s *histogramSplitter) best(rows []int, grad, hess []float64, cfg *growConfig) (split, bool) {
	var gTotal, hTotal float64

	for _, r := range rows {
		gTotal += grad[r]
		hTotal += hess[r]
	}

	bestSplit := split{gain: minGain}
	found := false

	for f, edges := range s.edges {
		g := make([]float64, len(edges))
		h := make([]float64, len(edges))
		n := make([]int, len(edges))

		for _, r := range rows {
			b := s.bins[f][r]
			g[b] += grad[r]
			h[b] += hess[r]
			n[b]++
		}

		var gl, hl float64

		var nl int

		for b := 0; b < len(edges)-1; b++ {
			gl += g[b]
			hl += h[b]
			nl += n[b]

			if n[b] == 0 || nl == len(rows) {
				continue
			}

			if !cfg.admissible(nl, len(rows)-nl, hl, hTotal-hl) {
				continue
			}

			if gain := cfg.gain(gl, hl, gTotal-gl, hTotal-hl); gain > bestSplit.gain {
				bestSplit = split{feature: f, threshold: edges[b], gain: gain}
				found = true
			}
		}
	}

	if !found {
		return split{}, false
	}

	bestSplit.left, bestSplit.right = partition(s.x, rows, bestSplit.feature, bestSplit.threshold)

	return bestSplit, true
}

//////
// Exported functionalities.
//////

// grow fits one tree to the gradient statistics of rows. Leaves are split in
// order of decreasing gain until no admissible split remains or the leaf
// budget is spent. Without a leaf budget the result does not depend on the
// order, so depth-wise and leaf-wise growth coincide.
func grow(rows []int, grad, hess []float64, cfg *growConfig, s splitter) *tree {
	t := &tree{}

	addLeaf := func(members []int) int {
		var g, h float64

		for _, r := range members {
			g += grad[r]
			h += hess[r]
		}

		t.Nodes = append(t.Nodes, node{Feature: leafNode, Left: -1, Right: -1, Value: cfg.leafValue(g, h)})

		return len(t.Nodes) - 1
	}

	q := &candidateQueue{}

	consider := func(idx, depth int, members []int) {
		if cfg.maxDepth > 0 && depth >= cfg.maxDepth {
			return
		}

		if len(members) < cfg.minSamplesSplit {
			return
		}

		if sp, ok := s.best(members, grad, hess, cfg); ok {
			heap.Push(q, &candidate{node: idx, depth: depth, split: sp})
		}
	}

	root := addLeaf(rows)
	consider(root, 0, rows)

	leaves := 1

	for q.Len() > 0 && (cfg.maxLeaves <= 0 || leaves < cfg.maxLeaves) {
		c := heap.Pop(q).(*candidate)

		left := addLeaf(c.split.left)
		right := addLeaf(c.split.right)

		t.Nodes[c.node].Feature = c.split.feature
		t.Nodes[c.node].Threshold = c.split.threshold
		t.Nodes[c.node].Left = left
		t.Nodes[c.node].Right = right

		leaves++

		consider(left, c.depth+1, c.split.left)
		consider(right, c.depth+1, c.split.right)
	}

	return t
}

//////
// Helper functions.
//////

// partition splits rows on x[feature] <= threshold, keeping their order.
func partition(x regtune.FeatureMatrix, rows []int, feature int, threshold float64) (left, right []int) {
	for _, r := range rows {
		if x[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return left, right
}
