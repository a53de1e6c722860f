package learn

import (
	"encoding/json"
	"fmt"
	"math"

	"goalcast/domain/model"

	"gonum.org/v1/gonum/mat"
)

// GradientBoosting fits depth-limited regression trees to the log-loss
// gradient, with Newton leaf weights regularised by Lambda. No row or
// column subsampling is done, so a fit is fully deterministic.
type GradientBoosting struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int
	Lambda       float64

	state boostingState
}

type boostingState struct {
	Width        int     `json:"width"`
	BaseScore    float64 `json:"base_score"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []*Tree `json:"trees"`
}

// NewGradientBoosting builds the family from params: n_estimators,
// learning_rate, max_depth, min_samples_leaf, reg_lambda.
func NewGradientBoosting(p model.Params) (*GradientBoosting, error) {
	m := &GradientBoosting{
		NEstimators:  p.Int("n_estimators", 100),
		LearningRate: p.Float("learning_rate", 0.1),
		MaxDepth:     p.Int("max_depth", 3),
		MinLeaf:      p.Int("min_samples_leaf", 1),
		Lambda:       p.Float("reg_lambda", 1.0),
	}
	if m.NEstimators < 1 || m.LearningRate <= 0 || m.MaxDepth < 1 || m.MinLeaf < 1 || m.Lambda < 0 {
		return nil, fmt.Errorf("invalid boosting params %s", p.Describe())
	}
	return m, nil
}

func (m *GradientBoosting) Family() model.FamilyTag { return model.FamilyGradientBoosting }

// Fit runs the boosting rounds
func (m *GradientBoosting) Fit(X mat.Matrix, y []float64) error {
	n, c, err := checkFit(X, y)
	if err != nil {
		return err
	}
	rows := rowsOf(X)

	prior := (float64(positives(y)) + 0.5) / (float64(n) + 1)
	base := math.Log(prior / (1 - prior))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = base
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	s := &newtonSplitter{grad: make([]float64, n), hess: make([]float64, n), lambda: m.Lambda}
	trees := make([]*Tree, 0, m.NEstimators)
	for round := 0; round < m.NEstimators; round++ {
		for i := range raw {
			p := sigmoid(raw[i])
			s.grad[i] = p - y[i]
			s.hess[i] = math.Max(p*(1-p), 1e-16)
		}
		t := grow(rows, idx, s, growConfig{maxDepth: m.MaxDepth, minLeaf: m.MinLeaf})
		for i, row := range rows {
			raw[i] += m.LearningRate * t.Eval(row)
		}
		trees = append(trees, t)
	}

	m.state = boostingState{Width: c, BaseScore: base, LearningRate: m.LearningRate, Trees: trees}
	return nil
}

// PredictProba returns P(y=1) per row
func (m *GradientBoosting) PredictProba(X mat.Matrix) ([]float64, error) {
	if _, err := checkPredict(X, len(m.state.Trees) > 0, m.state.Width); err != nil {
		return nil, err
	}
	rows := rowsOf(X)
	out := make([]float64, len(rows))
	for i, row := range rows {
		f := m.state.BaseScore
		for _, t := range m.state.Trees {
			f += m.state.LearningRate * t.Eval(row)
		}
		out[i] = sigmoid(f)
	}
	return out, nil
}

// Predict returns 0/1 labels
func (m *GradientBoosting) Predict(X mat.Matrix) ([]float64, error) {
	p, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(p), nil
}

func (m *GradientBoosting) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m.state)
}

func (m *GradientBoosting) UnmarshalState(raw json.RawMessage) error {
	var s boostingState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Width < 1 || len(s.Trees) == 0 {
		return fmt.Errorf("boosting state is inconsistent")
	}
	m.state = s
	return nil
}
