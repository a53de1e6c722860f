package selection

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ranks converts values to 1-based ranks, averaging ties
func ranks(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return []float64{}
	}

	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, val := range data {
		pairs[i] = pair{value: val, index: i}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	out := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		avg := float64(i+1) + float64(j-i-1)/2.0
		for k := i; k < j; k++ {
			out[pairs[k].index] = avg
		}
		i = j
	}
	return out
}

// spearmanMatrix returns the rank correlation matrix of the columns: the
// Pearson correlation of tie-averaged ranks. A constant column has no
// defined correlation and is reported as an error.
func spearmanMatrix(columns [][]float64) (*mat.SymDense, error) {
	k := len(columns)
	ranked := make([][]float64, k)
	for i, c := range columns {
		ranked[i] = ranks(c)
	}

	corr := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < k; j++ {
			rho := stat.Correlation(ranked[i], ranked[j], nil)
			if math.IsNaN(rho) || math.IsInf(rho, 0) {
				return nil, fmt.Errorf("rank correlation undefined between columns %d and %d", i, j)
			}
			corr.SetSym(i, j, rho)
		}
	}
	return corr, nil
}
