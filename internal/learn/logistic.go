package learn

import (
	"encoding/json"
	"fmt"
	"math"

	"goalcast/domain/model"

	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is a regularised logistic model trained by full-batch
// gradient descent on standardised inputs. The objective per sample is
// log-loss plus penalty/(C*n); L1 uses a proximal soft-threshold step.
type LogisticRegression struct {
	C        float64
	Penalty  string
	MaxIter  int
	Rate     float64 // zero picks a step from the data
	Tol      float64

	state logisticState
}

type logisticState struct {
	Scaler  *Scaler   `json:"scaler"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// NewLogisticRegression builds the family from params: C, penalty
// (l1|l2|none), max_iter.
func NewLogisticRegression(p model.Params) (*LogisticRegression, error) {
	m := &LogisticRegression{
		C:       p.Float("C", 1.0),
		Penalty: p.String("penalty", "l2"),
		MaxIter: p.Int("max_iter", 300),
		Tol:     1e-6,
	}
	if m.C <= 0 {
		return nil, fmt.Errorf("C must be positive, got %v", m.C)
	}
	switch m.Penalty {
	case "l1", "l2", "none":
	default:
		return nil, fmt.Errorf("unknown penalty %q", m.Penalty)
	}
	if m.MaxIter < 1 {
		return nil, fmt.Errorf("max_iter must be positive")
	}
	return m, nil
}

func (m *LogisticRegression) Family() model.FamilyTag { return model.FamilyLogisticRegression }

// Fit trains the model
func (m *LogisticRegression) Fit(X mat.Matrix, y []float64) error {
	n, c, err := checkFit(X, y)
	if err != nil {
		return err
	}
	scaler := FitScaler(X)
	Z := scaler.Transform(X)

	w := mat.NewVecDense(c, nil)
	bias := 0.0
	lambda := 1 / (m.C * float64(n))
	rate := m.Rate
	if rate <= 0 {
		// Standardised columns plus the bias bound the curvature by (c+1)/4.
		rate = 1 / (0.25*float64(c+1) + lambda)
	}

	z := mat.NewVecDense(n, nil)
	residual := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(c, nil)

	for iter := 0; iter < m.MaxIter; iter++ {
		z.MulVec(Z, w)
		sumResidual := 0.0
		for i := 0; i < n; i++ {
			r := sigmoid(z.AtVec(i)+bias) - y[i]
			residual.SetVec(i, r)
			sumResidual += r
		}
		grad.MulVec(Z.T(), residual)
		grad.ScaleVec(1/float64(n), grad)
		if m.Penalty == "l2" {
			grad.AddScaledVec(grad, lambda, w)
		}

		maxStep := 0.0
		for j := 0; j < c; j++ {
			old := w.AtVec(j)
			next := old - rate*grad.AtVec(j)
			if m.Penalty == "l1" {
				next = softThreshold(next, rate*lambda)
			}
			w.SetVec(j, next)
			maxStep = math.Max(maxStep, math.Abs(next-old))
		}
		step := rate * sumResidual / float64(n)
		bias -= step
		maxStep = math.Max(maxStep, math.Abs(step))

		if maxStep < m.Tol {
			break
		}
	}

	m.state = logisticState{Scaler: scaler, Weights: mat.Col(nil, 0, w), Bias: bias}
	return nil
}

// PredictProba returns P(y=1) per row
func (m *LogisticRegression) PredictProba(X mat.Matrix) ([]float64, error) {
	r, err := checkPredict(X, m.state.Scaler != nil, len(m.state.Weights))
	if err != nil {
		return nil, err
	}
	Z := m.state.Scaler.Transform(X)
	z := mat.NewVecDense(r, nil)
	z.MulVec(Z, mat.NewVecDense(len(m.state.Weights), m.state.Weights))
	out := make([]float64, r)
	for i := range out {
		out[i] = sigmoid(z.AtVec(i) + m.state.Bias)
	}
	return out, nil
}

// Predict returns 0/1 labels
func (m *LogisticRegression) Predict(X mat.Matrix) ([]float64, error) {
	p, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(p), nil
}

func (m *LogisticRegression) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m.state)
}

func (m *LogisticRegression) UnmarshalState(raw json.RawMessage) error {
	var s logisticState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Scaler == nil || len(s.Scaler.Mean) != len(s.Weights) {
		return fmt.Errorf("logistic state is inconsistent")
	}
	m.state = s
	return nil
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}
