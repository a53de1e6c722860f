package learn

import (
	"math/rand"
	"sort"
)

// treeNode is one node of a binary decision tree stored in a flat slice.
// Leaves have Feature -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a fitted decision tree. Rows go left when x[Feature] <= Threshold.
type Tree struct {
	Nodes []treeNode `json:"nodes"`
}

// Eval returns the leaf value reached by row
func (t *Tree) Eval(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the depth of the tree, a lone leaf being depth 0
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}

// splitter scores candidate splits of a node. It is fed rows in
// ascending feature order and returns the split's gain; leaf returns the
// node value.
type splitter interface {
	reset(idx []int)
	push(i int)
	gain() float64
	leaf(idx []int) float64
	pure(idx []int) bool
}

type growConfig struct {
	maxDepth    int // 0 means unlimited
	minLeaf     int
	maxFeatures int // 0 means all
	rng         *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// grow builds a tree over rows[idx] greedily. Candidate thresholds are
// midpoints between consecutive distinct values; ties in gain keep the
// first candidate found, scanning features in sampled order.
func grow(rows [][]float64, idx []int, s splitter, cfg growConfig) *Tree {
	t := &Tree{}
	cols := len(rows[0])
	order := make([]int, len(idx))

	var build func(idx []int, depth int) int
	build = func(idx []int, depth int) int {
		id := len(t.Nodes)
		t.Nodes = append(t.Nodes, treeNode{Feature: -1, Value: s.leaf(idx)})

		if (cfg.maxDepth > 0 && depth >= cfg.maxDepth) || len(idx) < 2*cfg.minLeaf || s.pure(idx) {
			return id
		}

		features := sampleFeatures(cols, cfg.maxFeatures, cfg.rng)
		best := split{feature: -1}
		sorted := order[:len(idx)]
		for _, f := range features {
			copy(sorted, idx)
			sort.SliceStable(sorted, func(a, b int) bool { return rows[sorted[a]][f] < rows[sorted[b]][f] })

			s.reset(sorted)
			for p := 0; p < len(sorted)-1; p++ {
				s.push(sorted[p])
				left := p + 1
				if left < cfg.minLeaf || len(sorted)-left < cfg.minLeaf {
					continue
				}
				lo, hi := rows[sorted[p]][f], rows[sorted[p+1]][f]
				if lo == hi {
					continue
				}
				if g := s.gain(); g > best.gain+1e-12 {
					best = split{feature: f, threshold: lo + (hi-lo)/2, gain: g}
				}
			}
		}
		if best.feature < 0 {
			return id
		}

		var leftIdx, rightIdx []int
		for _, i := range idx {
			if rows[i][best.feature] <= best.threshold {
				leftIdx = append(leftIdx, i)
			} else {
				rightIdx = append(rightIdx, i)
			}
		}
		l := build(leftIdx, depth+1)
		r := build(rightIdx, depth+1)
		t.Nodes[id].Feature = best.feature
		t.Nodes[id].Threshold = best.threshold
		t.Nodes[id].Left = l
		t.Nodes[id].Right = r
		return id
	}

	build(idx, 0)
	return t
}

func sampleFeatures(cols, k int, rng *rand.Rand) []int {
	if k <= 0 || k >= cols || rng == nil {
		all := make([]int, cols)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rng.Perm(cols)[:k]
}

// giniSplitter scores splits by Gini impurity decrease
type giniSplitter struct {
	y              []float64
	n, pos         float64
	leftN, leftPos float64
	parentImpurity float64
}

func gini(n, pos float64) float64 {
	if n == 0 {
		return 0
	}
	p := pos / n
	return 2 * p * (1 - p)
}

func (g *giniSplitter) reset(idx []int) {
	g.n, g.pos, g.leftN, g.leftPos = float64(len(idx)), 0, 0, 0
	for _, i := range idx {
		g.pos += g.y[i]
	}
	g.parentImpurity = gini(g.n, g.pos)
}

func (g *giniSplitter) push(i int) {
	g.leftN++
	g.leftPos += g.y[i]
}

func (g *giniSplitter) gain() float64 {
	rightN, rightPos := g.n-g.leftN, g.pos-g.leftPos
	child := (g.leftN*gini(g.leftN, g.leftPos) + rightN*gini(rightN, rightPos)) / g.n
	return g.parentImpurity - child
}

func (g *giniSplitter) leaf(idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += g.y[i]
	}
	return sum / float64(len(idx))
}

func (g *giniSplitter) pure(idx []int) bool {
	for _, i := range idx[1:] {
		if g.y[i] != g.y[idx[0]] {
			return false
		}
	}
	return true
}

// newtonSplitter scores splits by the second-order loss reduction of
// gradient boosting, with L2 regularisation lambda on leaf weights.
type newtonSplitter struct {
	grad, hess   []float64
	lambda       float64
	g, h         float64
	leftG, leftH float64
}

func (s *newtonSplitter) score(g, h float64) float64 {
	return g * g / (h + s.lambda)
}

func (s *newtonSplitter) reset(idx []int) {
	s.g, s.h, s.leftG, s.leftH = 0, 0, 0, 0
	for _, i := range idx {
		s.g += s.grad[i]
		s.h += s.hess[i]
	}
}

func (s *newtonSplitter) push(i int) {
	s.leftG += s.grad[i]
	s.leftH += s.hess[i]
}

func (s *newtonSplitter) gain() float64 {
	rightG, rightH := s.g-s.leftG, s.h-s.leftH
	return 0.5 * (s.score(s.leftG, s.leftH) + s.score(rightG, rightH) - s.score(s.g, s.h))
}

func (s *newtonSplitter) leaf(idx []int) float64 {
	var g, h float64
	for _, i := range idx {
		g += s.grad[i]
		h += s.hess[i]
	}
	return -g / (h + s.lambda)
}

func (s *newtonSplitter) pure(idx []int) bool {
	return len(idx) < 2
}
