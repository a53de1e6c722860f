package learn

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"goalcast/domain/model"

	"gonum.org/v1/gonum/mat"
)

// RandomForest is a bagged ensemble of Gini trees with sqrt(features)
// sampled per split. Each tree draws from its own generator derived from
// the seed, so fits are reproducible.
type RandomForest struct {
	NEstimators int
	MaxDepth    int
	MinLeaf     int
	Seed        int64

	state forestState
}

type forestState struct {
	Width int     `json:"width"`
	Trees []*Tree `json:"trees"`
}

// NewRandomForest builds the family from params: n_estimators,
// max_depth (0 for unlimited), min_samples_leaf.
func NewRandomForest(p model.Params, seed int64) (*RandomForest, error) {
	m := &RandomForest{
		NEstimators: p.Int("n_estimators", 100),
		MaxDepth:    p.Int("max_depth", 0),
		MinLeaf:     p.Int("min_samples_leaf", 1),
		Seed:        seed,
	}
	if m.NEstimators < 1 {
		return nil, fmt.Errorf("n_estimators must be positive")
	}
	if m.MaxDepth < 0 || m.MinLeaf < 1 {
		return nil, fmt.Errorf("invalid tree limits: max_depth=%d min_samples_leaf=%d", m.MaxDepth, m.MinLeaf)
	}
	return m, nil
}

func (m *RandomForest) Family() model.FamilyTag { return model.FamilyRandomForest }

// Fit grows the trees on bootstrap samples
func (m *RandomForest) Fit(X mat.Matrix, y []float64) error {
	n, c, err := checkFit(X, y)
	if err != nil {
		return err
	}
	rows := rowsOf(X)
	maxFeatures := int(math.Max(1, math.Floor(math.Sqrt(float64(c)))))

	trees := make([]*Tree, m.NEstimators)
	for t := range trees {
		rng := rand.New(rand.NewSource(m.Seed*7919 + int64(t)))
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		trees[t] = grow(rows, sample, &giniSplitter{y: y}, growConfig{
			maxDepth:    m.MaxDepth,
			minLeaf:     m.MinLeaf,
			maxFeatures: maxFeatures,
			rng:         rng,
		})
	}
	m.state = forestState{Width: c, Trees: trees}
	return nil
}

// PredictProba averages the trees' leaf class frequencies
func (m *RandomForest) PredictProba(X mat.Matrix) ([]float64, error) {
	if _, err := checkPredict(X, len(m.state.Trees) > 0, m.state.Width); err != nil {
		return nil, err
	}
	rows := rowsOf(X)
	out := make([]float64, len(rows))
	for i, row := range rows {
		sum := 0.0
		for _, t := range m.state.Trees {
			sum += t.Eval(row)
		}
		out[i] = sum / float64(len(m.state.Trees))
	}
	return out, nil
}

// Predict returns 0/1 labels
func (m *RandomForest) Predict(X mat.Matrix) ([]float64, error) {
	p, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(p), nil
}

func (m *RandomForest) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m.state)
}

func (m *RandomForest) UnmarshalState(raw json.RawMessage) error {
	var s forestState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Width < 1 || len(s.Trees) == 0 {
		return fmt.Errorf("forest state is inconsistent")
	}
	m.state = s
	return nil
}
