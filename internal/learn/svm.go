package learn

import (
	"encoding/json"
	"fmt"
	"math"

	"goalcast/domain/model"

	"gonum.org/v1/gonum/mat"
)

// LinearSVM is a soft-margin linear SVM trained by averaged full-batch
// subgradient descent on the primal hinge objective, with Platt scaling
// on the decision values for probabilities.
type LinearSVM struct {
	C       float64
	MaxIter int

	state svmState
}

type svmState struct {
	Scaler  *Scaler   `json:"scaler"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	PlattA  float64   `json:"platt_a"`
	PlattB  float64   `json:"platt_b"`
}

// NewLinearSVM builds the family from params: C, max_iter
func NewLinearSVM(p model.Params) (*LinearSVM, error) {
	m := &LinearSVM{
		C:       p.Float("C", 1.0),
		MaxIter: p.Int("max_iter", 500),
	}
	if m.C <= 0 {
		return nil, fmt.Errorf("C must be positive, got %v", m.C)
	}
	if m.MaxIter < 1 {
		return nil, fmt.Errorf("max_iter must be positive")
	}
	return m, nil
}

func (m *LinearSVM) Family() model.FamilyTag { return model.FamilyLinearSVM }

// Fit trains the separating hyperplane, then the probability sigmoid
func (m *LinearSVM) Fit(X mat.Matrix, y []float64) error {
	n, c, err := checkFit(X, y)
	if err != nil {
		return err
	}
	scaler := FitScaler(X)
	Z := scaler.Transform(X)

	signs := make([]float64, n)
	for i, v := range y {
		signs[i] = 2*v - 1
	}
	lambda := 1 / (m.C * float64(n))

	w := mat.NewVecDense(c, nil)
	avgW := mat.NewVecDense(c, nil)
	bias, avgBias := 0.0, 0.0
	margin := mat.NewVecDense(n, nil)
	active := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(c, nil)

	for t := 1; t <= m.MaxIter; t++ {
		margin.MulVec(Z, w)
		gradBias := 0.0
		for i := 0; i < n; i++ {
			a := 0.0
			if signs[i]*(margin.AtVec(i)+bias) < 1 {
				a = -signs[i]
			}
			active.SetVec(i, a)
			gradBias += a
		}
		grad.MulVec(Z.T(), active)
		grad.ScaleVec(1/float64(n), grad)
		grad.AddScaledVec(grad, lambda, w)

		eta := 1 / math.Sqrt(float64(t))
		w.AddScaledVec(w, -eta, grad)
		bias -= eta * gradBias / float64(n)

		// Running average of the iterates
		avgW.ScaleVec(float64(t-1)/float64(t), avgW)
		avgW.AddScaledVec(avgW, 1/float64(t), w)
		avgBias += (bias - avgBias) / float64(t)
	}

	decision := mat.NewVecDense(n, nil)
	decision.MulVec(Z, avgW)
	f := make([]float64, n)
	for i := range f {
		f[i] = decision.AtVec(i) + avgBias
	}
	a, b := plattScale(f, y)

	m.state = svmState{
		Scaler:  scaler,
		Weights: mat.Col(nil, 0, avgW),
		Bias:    avgBias,
		PlattA:  a,
		PlattB:  b,
	}
	return nil
}

// Decision returns signed distances to the hyperplane
func (m *LinearSVM) Decision(X mat.Matrix) ([]float64, error) {
	r, err := checkPredict(X, m.state.Scaler != nil, len(m.state.Weights))
	if err != nil {
		return nil, err
	}
	Z := m.state.Scaler.Transform(X)
	d := mat.NewVecDense(r, nil)
	d.MulVec(Z, mat.NewVecDense(len(m.state.Weights), m.state.Weights))
	out := make([]float64, r)
	for i := range out {
		out[i] = d.AtVec(i) + m.state.Bias
	}
	return out, nil
}

// PredictProba maps decision values through the Platt sigmoid
func (m *LinearSVM) PredictProba(X mat.Matrix) ([]float64, error) {
	f, err := m.Decision(X)
	if err != nil {
		return nil, err
	}
	for i, v := range f {
		f[i] = sigmoid(-(m.state.PlattA*v + m.state.PlattB))
	}
	return f, nil
}

// Predict returns 0/1 labels from the calibrated probabilities
func (m *LinearSVM) Predict(X mat.Matrix) ([]float64, error) {
	p, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(p), nil
}

func (m *LinearSVM) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m.state)
}

func (m *LinearSVM) UnmarshalState(raw json.RawMessage) error {
	var s svmState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Scaler == nil || len(s.Scaler.Mean) != len(s.Weights) {
		return fmt.Errorf("svm state is inconsistent")
	}
	m.state = s
	return nil
}

// plattScale fits P(y=1|f) = 1/(1+exp(A*f+B)) by Newton's method with
// backtracking, using Platt's smoothed targets.
func plattScale(f, y []float64) (float64, float64) {
	pos := float64(positives(y))
	neg := float64(len(y)) - pos
	hiTarget := (pos + 1) / (pos + 2)
	loTarget := 1 / (neg + 2)

	t := make([]float64, len(y))
	for i, v := range y {
		if v == 1 {
			t[i] = hiTarget
		} else {
			t[i] = loTarget
		}
	}

	objective := func(a, b float64) float64 {
		sum := 0.0
		for i := range f {
			fApB := f[i]*a + b
			if fApB >= 0 {
				sum += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				sum += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return sum
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	a, b := 0.0, math.Log((neg+1)/(pos+1))
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i := range f {
			p := sigmoid(-(f[i]*a + b))
			d2 := p * (1 - p)
			h11 += f[i] * f[i] * d2
			h22 += d2
			h21 += f[i] * d2
			d1 := t[i] - p
			g1 += f[i] * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			na, nb := a+step*dA, b+step*dB
			nf := objective(na, nb)
			if nf < fval+1e-4*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}
