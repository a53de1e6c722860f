package testkit

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Blobs draws n rows from two Gaussian clusters whose centres sit sep
// apart along every axis. Labels alternate 0,1 so both classes are always
// present and balanced.
func Blobs(n, features int, sep float64, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, features, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		y[i] = label
		for j := 0; j < features; j++ {
			X.Set(i, j, label*sep+rng.NormFloat64())
		}
	}
	return X, y
}

// Noise draws n rows of pure noise with random labels, for checks where
// nothing should be learnable.
func Noise(n, features int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, features, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = float64(i % 2)
		for j := 0; j < features; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
	}
	return X, y
}
