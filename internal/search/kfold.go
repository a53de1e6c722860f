// Package search tunes each model family with successive-halving grid
// search over shuffled k-fold cross-validation.
package search

import (
	"fmt"
	"math/rand"
	"sort"

	"goalcast/domain/core"

	"gonum.org/v1/gonum/mat"
)

// KFold is a shuffled k-fold splitter. The same value yields the same
// folds for the same row count, so search and ensemble scoring share one
// fold assignment.
type KFold struct {
	Splits int
	Seed   int64
}

// Fold holds row indices for one train/test split
type Fold struct {
	Train []int
	Test  []int
}

// Split partitions rows 0..n-1. Rows are permuted with the seed, then cut
// into contiguous test blocks; the first n%Splits blocks get one extra row.
func (k KFold) Split(n int) ([]Fold, error) {
	if k.Splits < 2 {
		return nil, fmt.Errorf("fold count must be at least 2, got %d", k.Splits)
	}
	if n < k.Splits {
		return nil, fmt.Errorf("%w: %d rows for %d folds", core.ErrInsufficientData, n, k.Splits)
	}
	perm := rand.New(rand.NewSource(k.Seed)).Perm(n)

	folds := make([]Fold, k.Splits)
	start := 0
	for f := 0; f < k.Splits; f++ {
		size := n / k.Splits
		if f < n%k.Splits {
			size++
		}
		test := append([]int(nil), perm[start:start+size]...)
		train := make([]int, 0, n-size)
		train = append(train, perm[:start]...)
		train = append(train, perm[start+size:]...)
		sort.Ints(test)
		sort.Ints(train)
		folds[f] = Fold{Train: train, Test: test}
		start += size
	}
	return folds, nil
}

// SplitSubset folds a subset of rows; indices in the result refer to the
// original rows.
func (k KFold) SplitSubset(rows []int) ([]Fold, error) {
	local, err := k.Split(len(rows))
	if err != nil {
		return nil, err
	}
	folds := make([]Fold, len(local))
	for f, fold := range local {
		folds[f] = Fold{Train: pick(rows, fold.Train), Test: pick(rows, fold.Test)}
	}
	return folds, nil
}

func pick(rows, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// Rows copies the selected rows of X and y
func Rows(X mat.Matrix, y []float64, idx []int) (*mat.Dense, []float64) {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	labels := make([]float64, len(idx))
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(r, j))
		}
		labels[i] = y[r]
	}
	return out, labels
}
