package learn

import (
	"fmt"

	"goalcast/domain/core"
	"goalcast/domain/model"
)

// Factory instantiates a family member from a hyperparameter assignment
type Factory func(params model.Params, seed int64) (Model, error)

// Family is one registry entry: its grid and how to build a member
type Family struct {
	Tag  model.FamilyTag
	Grid model.Grid
	New  Factory
}

// Registry is the closed, read-only set of model families. It is safe
// for concurrent use because nothing mutates it after construction.
type Registry struct {
	families map[model.FamilyTag]Family
	order    []model.FamilyTag
}

// NewRegistry creates a registry; later duplicates replace earlier ones
func NewRegistry(families ...Family) *Registry {
	r := &Registry{families: make(map[model.FamilyTag]Family, len(families))}
	for _, f := range families {
		if _, ok := r.families[f.Tag]; !ok {
			r.order = append(r.order, f.Tag)
		}
		r.families[f.Tag] = f
	}
	return r
}

func axis(name string, values ...interface{}) model.Axis {
	return model.Axis{Name: name, Values: values}
}

// DefaultRegistry returns the built-in families with their grids
func DefaultRegistry() *Registry {
	return NewRegistry(
		Family{
			Tag: model.FamilyLogisticRegression,
			Grid: model.Grid{
				axis("C", 0.01, 0.1, 1.0, 10.0),
				axis("penalty", "l1", "l2"),
			},
			New: func(p model.Params, _ int64) (Model, error) { return NewLogisticRegression(p) },
		},
		Family{
			Tag: model.FamilyKNN,
			Grid: model.Grid{
				axis("n_neighbors", 3, 5, 7, 9, 11),
				axis("weights", "uniform", "distance"),
				axis("metric", "euclidean", "manhattan"),
			},
			New: func(p model.Params, _ int64) (Model, error) { return NewKNN(p) },
		},
		Family{
			Tag: model.FamilyLinearSVM,
			Grid: model.Grid{
				axis("C", 0.01, 0.1, 1.0, 10.0),
			},
			New: func(p model.Params, _ int64) (Model, error) { return NewLinearSVM(p) },
		},
		Family{
			Tag: model.FamilyKernelSVM,
			Grid: model.Grid{
				axis("C", 0.1, 1.0, 10.0),
				axis("kernel", "rbf", "poly"),
				axis("degree", 2, 3),
			},
			New: func(p model.Params, _ int64) (Model, error) { return NewKernelSVM(p) },
		},
		Family{
			Tag: model.FamilyRandomForest,
			Grid: model.Grid{
				axis("n_estimators", 50, 100),
				axis("max_depth", 3, 6, 0),
				axis("min_samples_leaf", 1, 5),
			},
			New: func(p model.Params, seed int64) (Model, error) { return NewRandomForest(p, seed) },
		},
		Family{
			Tag: model.FamilyGradientBoosting,
			Grid: model.Grid{
				axis("n_estimators", 50, 100),
				axis("learning_rate", 0.05, 0.1),
				axis("max_depth", 2, 3),
			},
			New: func(p model.Params, _ int64) (Model, error) { return NewGradientBoosting(p) },
		},
	)
}

// Tags lists families in registration order
func (r *Registry) Tags() []model.FamilyTag {
	return append([]model.FamilyTag(nil), r.order...)
}

// Family looks up a family
func (r *Registry) Family(tag model.FamilyTag) (Family, error) {
	f, ok := r.families[tag]
	if !ok {
		return Family{}, fmt.Errorf("%w: %s", core.ErrFamilyNotFound, tag)
	}
	return f, nil
}

// Subset returns a registry restricted to tags, in the given order
func (r *Registry) Subset(tags []model.FamilyTag) (*Registry, error) {
	families := make([]Family, 0, len(tags))
	for _, tag := range tags {
		f, err := r.Family(tag)
		if err != nil {
			return nil, err
		}
		families = append(families, f)
	}
	return NewRegistry(families...), nil
}

// New instantiates an unfitted member
func (r *Registry) New(tag model.FamilyTag, params model.Params, seed int64) (Model, error) {
	f, err := r.Family(tag)
	if err != nil {
		return nil, err
	}
	return f.New(params, seed)
}

// Snapshot serialises a fitted member
func Snapshot(m Model, params model.Params, score model.Score) (model.MemberState, error) {
	raw, err := m.MarshalState()
	if err != nil {
		return model.MemberState{}, fmt.Errorf("snapshot %s: %w", m.Family(), err)
	}
	return model.MemberState{Family: m.Family(), Params: params, Score: score, State: raw}, nil
}

// Restore rebuilds a fitted member from its snapshot
func (r *Registry) Restore(state model.MemberState) (Model, error) {
	m, err := r.New(state.Family, state.Params, 0)
	if err != nil {
		return nil, err
	}
	if err := m.UnmarshalState(state.State); err != nil {
		return nil, fmt.Errorf("%w: %s state: %v", core.ErrIncompatibleArtifact, state.Family, err)
	}
	return m, nil
}
