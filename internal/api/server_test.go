package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/errors"
	"goalcast/internal/predict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	artifacts map[core.CompetitionID]*model.Artifact
}

func (m *memStore) Save(_ context.Context, a *model.Artifact) (string, error) {
	m.artifacts[a.Competition] = a
	return string(a.Competition), nil
}

func (m *memStore) Load(_ context.Context, c core.CompetitionID) (*model.Artifact, error) {
	a, ok := m.artifacts[c]
	if !ok {
		return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, c))
	}
	return a, nil
}

func (m *memStore) List(context.Context) ([]core.CompetitionID, error) {
	var out []core.CompetitionID
	for c := range m.artifacts {
		out = append(out, c)
	}
	return out, nil
}

type memIndex struct {
	records []model.ArtifactRecord
}

func (m *memIndex) Record(_ context.Context, r model.ArtifactRecord) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memIndex) Latest(_ context.Context, c core.CompetitionID) (*model.ArtifactRecord, error) {
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Competition == c {
			return &m.records[i], nil
		}
	}
	return nil, errors.NotFound("artifact record")
}

func (m *memIndex) List(context.Context) ([]model.ArtifactRecord, error) {
	return m.records, nil
}

func (m *memIndex) History(_ context.Context, c core.CompetitionID, limit int) ([]model.ArtifactRecord, error) {
	var out []model.ArtifactRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].Competition == c {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

type stubPredictor struct{}

func (stubPredictor) Predict(_ context.Context, c core.CompetitionID, fx predict.Fixture) (*predict.Prediction, error) {
	if fx.HomeTeam == "" || fx.AwayTeam == "" {
		return nil, errors.InvalidInput("home_team and away_team are required")
	}
	if fx.HomeTeam == "Nobody" {
		return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w: Nobody", core.ErrTeamNotFound))
	}
	return &predict.Prediction{Competition: c, HomeTeam: fx.HomeTeam, AwayTeam: fx.AwayTeam, Probability: 0.62, Over: true}, nil
}

func newTestServer(withIndex bool) *Server {
	store := &memStore{artifacts: map[core.CompetitionID]*model.Artifact{
		"E0": {
			Competition: "E0",
			Voting:      model.VotingSoft,
			Features:    []string{"HS", "AS"},
			Members:     []model.MemberState{{Family: model.FamilyKNN, State: json.RawMessage(`{"k":5}`)}},
		},
	}}
	var index *memIndex
	if withIndex {
		index = &memIndex{records: []model.ArtifactRecord{
			{Competition: "E0", RunID: "r1", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Competition: "E0", RunID: "r2", CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		}}
		return NewServer(store, index, stubPredictor{}, nil)
	}
	return NewServer(store, nil, stubPredictor{}, nil)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(false), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListArtifacts(t *testing.T) {
	rec := do(t, newTestServer(false), http.MethodGet, "/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"competition":"E0"}]`, rec.Body.String())

	rec = do(t, newTestServer(true), http.MethodGet, "/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []model.ArtifactRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestGetArtifact_HidesMemberState(t *testing.T) {
	rec := do(t, newTestServer(false), http.MethodGet, "/artifacts/E0", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var a model.Artifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, []string{"HS", "AS"}, a.Features)
	require.Len(t, a.Members, 1)
	assert.Equal(t, model.FamilyKNN, a.Members[0].Family)
	assert.Empty(t, a.Members[0].State)
}

func TestGetArtifact_Errors(t *testing.T) {
	s := newTestServer(false)

	rec := do(t, s, http.MethodGet, "/artifacts/SP1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), errors.CodeNotFound)

	rec = do(t, s, http.MethodGet, "/artifacts/E0_old", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	rec := do(t, newTestServer(true), http.MethodGet, "/artifacts/E0/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []model.ArtifactRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, core.RunID("r2"), records[0].RunID)

	rec = do(t, newTestServer(true), http.MethodGet, "/artifacts/E0/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newTestServer(false), http.MethodGet, "/artifacts/E0/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPredict(t *testing.T) {
	s := newTestServer(false)

	rec := do(t, s, http.MethodPost, "/artifacts/E0/predictions", `{"home_team":"Arsenal","away_team":"Chelsea"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var p predict.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, core.CompetitionID("E0"), p.Competition)
	assert.True(t, p.Over)

	rec = do(t, s, http.MethodPost, "/artifacts/E0/predictions", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/artifacts/E0/predictions", `{"home_team":"Nobody","away_team":"Chelsea"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(errors.DataError("bad table")))
	assert.Equal(t, http.StatusNotFound, statusFor(core.ErrFamilyNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errors.Cancelled(context.Canceled)))
}
