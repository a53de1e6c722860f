package learn

import (
	"encoding/json"
	"fmt"
	"math"

	"goalcast/domain/model"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KernelSVM is a soft-margin SVM in a reproducing kernel space. The
// decision function f(x) = sum_j beta_j K(z_j, x) + b is trained by
// averaged full-batch kernel subgradient descent on the hinge objective,
// then calibrated with Platt scaling. Only rows with a non-zero
// coefficient are kept as support vectors.
type KernelSVM struct {
	C       float64
	Kernel  string
	Degree  int
	Gamma   float64
	Coef0   float64
	MaxIter int

	state kernelSVMState
}

type kernelSVMState struct {
	Scaler  *Scaler     `json:"scaler"`
	Kernel  string      `json:"kernel"`
	Degree  int         `json:"degree"`
	Gamma   float64     `json:"gamma"`
	Coef0   float64     `json:"coef0"`
	Support [][]float64 `json:"support"`
	Beta    []float64   `json:"beta"`
	Bias    float64     `json:"bias"`
	PlattA  float64     `json:"platt_a"`
	PlattB  float64     `json:"platt_b"`
}

// NewKernelSVM builds the family from params: C, kernel (rbf|poly),
// degree, gamma (0 = 1/features), coef0, max_iter
func NewKernelSVM(p model.Params) (*KernelSVM, error) {
	m := &KernelSVM{
		C:       p.Float("C", 1.0),
		Kernel:  p.String("kernel", "rbf"),
		Degree:  p.Int("degree", 3),
		Gamma:   p.Float("gamma", 0),
		Coef0:   p.Float("coef0", 1),
		MaxIter: p.Int("max_iter", 200),
	}
	if m.C <= 0 {
		return nil, fmt.Errorf("C must be positive, got %v", m.C)
	}
	if m.Kernel != "rbf" && m.Kernel != "poly" {
		return nil, fmt.Errorf("kernel must be rbf or poly, got %q", m.Kernel)
	}
	if m.Kernel == "poly" && m.Degree < 1 {
		return nil, fmt.Errorf("degree must be at least 1, got %d", m.Degree)
	}
	if m.Gamma < 0 {
		return nil, fmt.Errorf("gamma must be non-negative")
	}
	if m.MaxIter < 1 {
		return nil, fmt.Errorf("max_iter must be positive")
	}
	return m, nil
}

func (m *KernelSVM) Family() model.FamilyTag { return model.FamilyKernelSVM }

func (s *kernelSVMState) kernel(a, b []float64) float64 {
	switch s.Kernel {
	case "poly":
		return math.Pow(s.Gamma*floats.Dot(a, b)+s.Coef0, float64(s.Degree))
	default:
		d := floats.Distance(a, b, 2)
		return math.Exp(-s.Gamma * d * d)
	}
}

// Fit trains the kernel expansion, then the probability sigmoid
func (m *KernelSVM) Fit(X mat.Matrix, y []float64) error {
	n, c, err := checkFit(X, y)
	if err != nil {
		return err
	}
	scaler := FitScaler(X)
	Z := rowsOf(scaler.Transform(X))

	st := kernelSVMState{
		Scaler: scaler,
		Kernel: m.Kernel,
		Degree: m.Degree,
		Gamma:  m.Gamma,
		Coef0:  m.Coef0,
	}
	if st.Gamma == 0 {
		st.Gamma = 1 / float64(c)
	}

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			K.SetSym(i, j, st.kernel(Z[i], Z[j]))
		}
	}

	signs := make([]float64, n)
	for i, v := range y {
		signs[i] = 2*v - 1
	}
	lambda := 1 / (m.C * float64(n))

	beta := mat.NewVecDense(n, nil)
	avgBeta := mat.NewVecDense(n, nil)
	margin := mat.NewVecDense(n, nil)
	active := mat.NewVecDense(n, nil)
	bias, avgBias := 0.0, 0.0

	for t := 1; t <= m.MaxIter; t++ {
		margin.MulVec(K, beta)
		gradBias := 0.0
		for i := 0; i < n; i++ {
			a := 0.0
			if signs[i]*(margin.AtVec(i)+bias) < 1 {
				a = -signs[i]
			}
			active.SetVec(i, a)
			gradBias += a
		}

		// Functional gradient: lambda*beta + active/n in coefficient space.
		eta := 1 / math.Sqrt(float64(t))
		beta.ScaleVec(1-eta*lambda, beta)
		beta.AddScaledVec(beta, -eta/float64(n), active)
		bias -= eta * gradBias / float64(n)

		avgBeta.ScaleVec(float64(t-1)/float64(t), avgBeta)
		avgBeta.AddScaledVec(avgBeta, 1/float64(t), beta)
		avgBias += (bias - avgBias) / float64(t)
	}

	decision := mat.NewVecDense(n, nil)
	decision.MulVec(K, avgBeta)
	f := make([]float64, n)
	for i := range f {
		f[i] = decision.AtVec(i) + avgBias
	}
	st.PlattA, st.PlattB = plattScale(f, y)

	for i := 0; i < n; i++ {
		if b := avgBeta.AtVec(i); b != 0 {
			st.Support = append(st.Support, Z[i])
			st.Beta = append(st.Beta, b)
		}
	}
	st.Bias = avgBias
	m.state = st
	return nil
}

// Decision returns the kernel expansion value per row
func (m *KernelSVM) Decision(X mat.Matrix) ([]float64, error) {
	cols := 0
	if m.state.Scaler != nil {
		cols = len(m.state.Scaler.Mean)
	}
	if _, err := checkPredict(X, m.state.Scaler != nil, cols); err != nil {
		return nil, err
	}
	rows := rowsOf(m.state.Scaler.Transform(X))
	out := make([]float64, len(rows))
	for i, z := range rows {
		sum := m.state.Bias
		for j, sv := range m.state.Support {
			sum += m.state.Beta[j] * m.state.kernel(sv, z)
		}
		out[i] = sum
	}
	return out, nil
}

// PredictProba maps decision values through the Platt sigmoid
func (m *KernelSVM) PredictProba(X mat.Matrix) ([]float64, error) {
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
func (m *KernelSVM) Predict(X mat.Matrix) ([]float64, error) {
	p, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(p), nil
}

func (m *KernelSVM) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m.state)
}

func (m *KernelSVM) UnmarshalState(raw json.RawMessage) error {
	var s kernelSVMState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Scaler == nil || len(s.Support) != len(s.Beta) || (s.Kernel != "rbf" && s.Kernel != "poly") {
		return fmt.Errorf("kernel svm state is inconsistent")
	}
	for _, sv := range s.Support {
		if len(sv) != len(s.Scaler.Mean) {
			return fmt.Errorf("kernel svm support vector has %d columns, scaler %d", len(sv), len(s.Scaler.Mean))
		}
	}
	m.state = s
	return nil
}
