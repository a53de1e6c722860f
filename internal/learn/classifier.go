// Package learn holds the binary classifier families the search engine
// tunes. Every family is deterministic given its params and seed, and can
// snapshot its fitted state as JSON.
package learn

import (
	"encoding/json"
	"fmt"
	"math"

	"goalcast/domain/core"
	"goalcast/domain/model"

	"gonum.org/v1/gonum/mat"
)

// Classifier is a binary classifier over 0/1 labels
type Classifier interface {
	Fit(X mat.Matrix, y []float64) error
	// PredictProba returns P(y=1) per row
	PredictProba(X mat.Matrix) ([]float64, error)
	Predict(X mat.Matrix) ([]float64, error)
}

// Model is a classifier of a registered family with serialisable state
type Model interface {
	Classifier
	Family() model.FamilyTag
	MarshalState() (json.RawMessage, error)
	UnmarshalState(raw json.RawMessage) error
}

// Threshold turns probabilities into labels: 1 only strictly above 0.5
func Threshold(proba []float64) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		if p > 0.5 {
			out[i] = 1
		}
	}
	return out
}

// checkFit validates a training set
func checkFit(X mat.Matrix, y []float64) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, fmt.Errorf("%w: empty training matrix", core.ErrInsufficientData)
	}
	if rows != len(y) {
		return 0, 0, fmt.Errorf("%w: %d rows, %d labels", core.ErrDimension, rows, len(y))
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return 0, 0, fmt.Errorf("label %v at row %d is not 0/1", v, i)
		}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("non-finite value at row %d column %d", i, j)
			}
		}
	}
	return rows, cols, nil
}

// checkPredict validates an inference matrix against the fitted width
func checkPredict(X mat.Matrix, fitted bool, cols int) (int, error) {
	if !fitted {
		return 0, core.ErrNotFitted
	}
	r, c := X.Dims()
	if c != cols {
		return 0, fmt.Errorf("%w: model expects %d features, got %d", core.ErrDimension, cols, c)
	}
	return r, nil
}

// rowsOf copies a matrix into row slices
func rowsOf(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = X.At(i, j)
		}
		out[i] = row
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func positives(y []float64) int {
	n := 0
	for _, v := range y {
		if v == 1 {
			n++
		}
	}
	return n
}
