package artifact

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(comp core.CompetitionID) *model.Artifact {
	return &model.Artifact{
		Competition: comp,
		RunID:       core.NewRunID(),
		CreatedAt:   time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		Label:       "Over2.5",
		Metric:      model.MetricAccuracy,
		Voting:      model.VotingSoft,
		Features:    []string{"AvgHomeGoalsScored", "B365>2.5"},
		Score:       model.NewScore([]float64{0.6, 0.7}),
		Members: []model.MemberState{{
			Family: model.FamilyKNN,
			Params: model.Params{"n_neighbors": 5},
			Score:  model.NewScore([]float64{0.6, 0.6}),
			State:  []byte(`{"rows":[[1,2]]}`),
		}},
	}
}

func TestLocalStore_SaveLoadList(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := store.Save(ctx, sample("E0"))
	require.NoError(t, err)
	assert.Equal(t, "E0_voting_ensemble.json", filepath.Base(loc))
	_, err = store.Save(ctx, sample("SP1"))
	require.NoError(t, err)

	a, err := store.Load(ctx, "E0")
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactFormat, a.Format)
	assert.Equal(t, model.ArtifactVersion, a.Version)
	assert.False(t, a.Fingerprint.IsEmpty())
	assert.Equal(t, []string{"AvgHomeGoalsScored", "B365>2.5"}, a.Features)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.CompetitionID{"E0", "SP1"}, ids)
}

func TestLocalStore_Missing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "D1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestLocalStore_TamperedArtifactRejected(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Save(ctx, sample("E0"))
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw = []byte(strings.Replace(string(raw), "AvgHomeGoalsScored", "AvgAwayGoalsScored", 1))
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = store.Load(ctx, "E0")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, core.ErrHashMismatch))
	assert.Equal(t, errors.CodePersistenceError, errors.GetCode(err))
}

func TestLocalStore_UnknownVersionRejected(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Save(ctx, sample("E0"))
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw = []byte(strings.Replace(string(raw), `"version": 1`, `"version": 2`, 1))
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = store.Load(ctx, "E0")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, core.ErrIncompatibleArtifact))
}

func TestLocalStore_NaNScoreFailsWithoutReplacing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, sample("E0"))
	require.NoError(t, err)

	bad := sample("E0")
	bad.Score = model.NewScore(nil)
	_, err = store.Save(ctx, bad)
	require.Error(t, err)
	assert.Equal(t, errors.CodePersistenceError, errors.GetCode(err))

	a, err := store.Load(ctx, "E0")
	require.NoError(t, err, "the previous artifact survives a failed save")
	assert.InDelta(t, 0.65, a.Score.Mean, 1e-12)
}
