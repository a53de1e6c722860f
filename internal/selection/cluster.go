package selection

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rowDistances returns pairwise Euclidean distances between the rows of
// a correlation matrix, so two features are close when they correlate
// alike with every other feature.
func rowDistances(corr *mat.SymDense) *mat.SymDense {
	k := corr.SymmetricDim()
	rows := make([][]float64, k)
	for i := 0; i < k; i++ {
		rows[i] = mat.Row(nil, i, corr)
	}
	dist := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			dist.SetSym(i, j, floats.Distance(rows[i], rows[j], 2))
		}
	}
	return dist
}

// averageLinkage clusters points bottom-up, merging the two clusters with
// the smallest mean pairwise distance while that distance is at most
// threshold. Average linkage never produces inversions, so stopping at
// the threshold equals cutting the full dendrogram there. Equal
// distances merge the pair that comes first in cluster order.
//
// The result labels each point; labels are numbered by the first point
// of each cluster in input order.
func averageLinkage(dist *mat.SymDense, threshold float64) []int {
	n := dist.SymmetricDim()
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	linkage := func(a, b []int) float64 {
		sum := 0.0
		for _, i := range a {
			for _, j := range b {
				sum += dist.At(i, j)
			}
		}
		return sum / float64(len(a)*len(b))
	}

	for len(clusters) > 1 {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if d := linkage(clusters[i], clusters[j]); d < best {
					best, bi, bj = d, i, j
				}
			}
		}
		if best > threshold {
			break
		}
		merged := append(append([]int{}, clusters[bi]...), clusters[bj]...)
		clusters[bi] = merged
		clusters = append(clusters[:bj], clusters[bj+1:]...)
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for p := 0; p < n; p++ {
		if labels[p] >= 0 {
			continue
		}
		for _, c := range clusters {
			if containsInt(c, p) {
				for _, q := range c {
					labels[q] = next
				}
				break
			}
		}
		next++
	}
	return labels
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
