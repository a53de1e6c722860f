package learn

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"goalcast/domain/model"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KNN is a k-nearest-neighbours classifier on standardised inputs.
// Equidistant neighbours are ordered by training row, so results do not
// depend on sort stability.
type KNN struct {
	K       int
	Weights string // uniform | distance
	Metric  string // euclidean | manhattan

	state knnState
}

type knnState struct {
	Scaler *Scaler     `json:"scaler"`
	Rows   [][]float64 `json:"rows"`
	Labels []float64   `json:"labels"`
}

// NewKNN builds the family from params: n_neighbors, weights, metric
func NewKNN(p model.Params) (*KNN, error) {
	m := &KNN{
		K:       p.Int("n_neighbors", 5),
		Weights: p.String("weights", "uniform"),
		Metric:  p.String("metric", "euclidean"),
	}
	if m.K < 1 {
		return nil, fmt.Errorf("n_neighbors must be positive, got %d", m.K)
	}
	if m.Weights != "uniform" && m.Weights != "distance" {
		return nil, fmt.Errorf("unknown weights %q", m.Weights)
	}
	if m.Metric != "euclidean" && m.Metric != "manhattan" {
		return nil, fmt.Errorf("unknown metric %q", m.Metric)
	}
	return m, nil
}

func (m *KNN) Family() model.FamilyTag { return model.FamilyKNN }

// Fit memorises the standardised training set
func (m *KNN) Fit(X mat.Matrix, y []float64) error {
	if _, _, err := checkFit(X, y); err != nil {
		return err
	}
	scaler := FitScaler(X)
	m.state = knnState{
		Scaler: scaler,
		Rows:   rowsOf(scaler.Transform(X)),
		Labels: append([]float64(nil), y...),
	}
	return nil
}

// PredictProba returns the (weighted) share of positive neighbours
func (m *KNN) PredictProba(X mat.Matrix) ([]float64, error) {
	width := 0
	if m.state.Scaler != nil {
		width = len(m.state.Scaler.Mean)
	}
	r, err := checkPredict(X, m.state.Scaler != nil, width)
	if err != nil {
		return nil, err
	}
	L := 2.0
	if m.Metric == "manhattan" {
		L = 1
	}

	k := m.K
	if k > len(m.state.Rows) {
		k = len(m.state.Rows)
	}
	queries := rowsOf(m.state.Scaler.Transform(X))

	type neighbour struct {
		dist  float64
		index int
	}
	out := make([]float64, r)
	neighbours := make([]neighbour, len(m.state.Rows))
	for qi, q := range queries {
		for i, row := range m.state.Rows {
			neighbours[i] = neighbour{floats.Distance(q, row, L), i}
		}
		sort.Slice(neighbours, func(a, b int) bool {
			if neighbours[a].dist != neighbours[b].dist {
				return neighbours[a].dist < neighbours[b].dist
			}
			return neighbours[a].index < neighbours[b].index
		})

		nearest := neighbours[:k]
		if m.Weights == "distance" && nearest[0].dist == 0 {
			// Exact matches take all the weight, as 1/0 would.
			exact := 0
			for exact < len(nearest) && nearest[exact].dist == 0 {
				exact++
			}
			nearest = nearest[:exact]
		}

		var num, den float64
		for _, nb := range nearest {
			w := 1.0
			if m.Weights == "distance" && nb.dist > 0 {
				w = 1 / nb.dist
			}
			num += w * m.state.Labels[nb.index]
			den += w
		}
		out[qi] = num / den
		if math.IsNaN(out[qi]) {
			out[qi] = 0
		}
	}
	return out, nil
}

// Predict returns 0/1 labels
func (m *KNN) Predict(X mat.Matrix) ([]float64, error) {
	p, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(p), nil
}

func (m *KNN) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m.state)
}

func (m *KNN) UnmarshalState(raw json.RawMessage) error {
	var s knnState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Scaler == nil || len(s.Rows) == 0 || len(s.Rows) != len(s.Labels) {
		return fmt.Errorf("knn state is inconsistent")
	}
	m.state = s
	return nil
}
