// Package ensemble combines the tuned family members into one voting
// classifier.
package ensemble

import (
	"fmt"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/learn"

	"gonum.org/v1/gonum/mat"
)

// Member is one ensemble slot
type Member struct {
	Params model.Params
	Score  model.Score
	Model  learn.Model
}

// Voting is a soft or hard voting classifier over its members
type Voting struct {
	Strategy model.Voting
	Members  []Member
	fitted   bool
}

// NewVoting creates an unfitted ensemble
func NewVoting(strategy model.Voting, members []Member) *Voting {
	return &Voting{Strategy: strategy, Members: members}
}

// Fit fits every member on the same data
func (v *Voting) Fit(X mat.Matrix, y []float64) error {
	if len(v.Members) == 0 {
		return fmt.Errorf("%w: ensemble has no members", core.ErrInsufficientData)
	}
	for _, m := range v.Members {
		if err := m.Model.Fit(X, y); err != nil {
			return fmt.Errorf("member %s: %w", m.Model.Family(), err)
		}
	}
	v.fitted = true
	return nil
}

// PredictProba averages member probabilities under soft voting. Under
// hard voting it returns the share of members voting 1.
func (v *Voting) PredictProba(X mat.Matrix) ([]float64, error) {
	if !v.fitted {
		return nil, core.ErrNotFitted
	}
	r, _ := X.Dims()
	out := make([]float64, r)
	for _, m := range v.Members {
		var (
			p   []float64
			err error
		)
		if v.Strategy == model.VotingHard {
			p, err = m.Model.Predict(X)
		} else {
			p, err = m.Model.PredictProba(X)
		}
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Model.Family(), err)
		}
		for i := range out {
			out[i] += p[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(v.Members))
	}
	return out, nil
}

// Predict returns 1 when the average probability is above 0.5 (soft) or
// when a strict majority votes 1 (hard). Ties go to 0 either way.
func (v *Voting) Predict(X mat.Matrix) ([]float64, error) {
	p, err := v.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return learn.Threshold(p), nil
}

// Snapshot serialises every member
func (v *Voting) Snapshot() ([]model.MemberState, error) {
	if !v.fitted {
		return nil, core.ErrNotFitted
	}
	states := make([]model.MemberState, len(v.Members))
	for i, m := range v.Members {
		s, err := learn.Snapshot(m.Model, m.Params, m.Score)
		if err != nil {
			return nil, err
		}
		states[i] = s
	}
	return states, nil
}

// Restore rebuilds a fitted ensemble from member snapshots
func Restore(registry *learn.Registry, strategy model.Voting, states []model.MemberState) (*Voting, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: no members", core.ErrIncompatibleArtifact)
	}
	members := make([]Member, len(states))
	for i, s := range states {
		m, err := registry.Restore(s)
		if err != nil {
			return nil, err
		}
		members[i] = Member{Params: s.Params, Score: s.Score, Model: m}
	}
	return &Voting{Strategy: strategy, Members: members, fitted: true}, nil
}

// Families lists member families in order
func (v *Voting) Families() []model.FamilyTag {
	out := make([]model.FamilyTag, len(v.Members))
	for i, m := range v.Members {
		out[i] = m.Model.Family()
	}
	return out
}
