package ensemble

import (
	"fmt"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/learn"
)

// Envelope describes the training context stored next to the members
type Envelope struct {
	Competition   core.CompetitionID
	RunID         core.RunID
	Label         string
	GoalThreshold float64
	Metric        model.Metric
	Features      []string
	Score         model.Score
	CreatedAt     time.Time
}

// ToArtifact snapshots a fitted ensemble into an unsealed artifact
func (v *Voting) ToArtifact(env Envelope) (*model.Artifact, error) {
	members, err := v.Snapshot()
	if err != nil {
		return nil, err
	}
	return &model.Artifact{
		Competition:   env.Competition,
		RunID:         env.RunID,
		CreatedAt:     env.CreatedAt.UTC(),
		Label:         env.Label,
		GoalThreshold: env.GoalThreshold,
		Metric:        env.Metric,
		Voting:        v.Strategy,
		Features:      append([]string(nil), env.Features...),
		Score:         env.Score,
		Members:       members,
	}, nil
}

// FromArtifact validates an artifact and restores its ensemble
func FromArtifact(registry *learn.Registry, a *model.Artifact) (*Voting, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	v, err := Restore(registry, a.Voting, a.Members)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", a.Competition, err)
	}
	return v, nil
}
