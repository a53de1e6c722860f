package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"goalcast/adapters/artifact"
	"goalcast/adapters/db"
	"goalcast/adapters/tabular"
	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/domain/stage"
	"goalcast/internal/config"
	"goalcast/internal/errors"
	"goalcast/internal/features"
	"goalcast/internal/logging"
	"goalcast/internal/predict"
	"goalcast/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipelineConfig() config.Pipeline {
	cfg := config.DefaultPipeline()
	cfg.NumFeatures = 5
	cfg.ClusteringThreshold = 0.5
	cfg.CVFolds = 3
	cfg.SearchWorkers = 2
	cfg.Parallelism = 2
	cfg.Families = []model.FamilyTag{model.FamilyLogisticRegression, model.FamilyKNN}
	return cfg
}

type harness struct {
	root     string
	pipeline *Pipeline
	store    *artifact.LocalStore
	index    *db.Index
}

func newHarness(t *testing.T, cfg config.Pipeline) *harness {
	t.Helper()
	root := t.TempDir()
	log := logging.Discard()

	store, err := artifact.NewLocalStore(filepath.Join(root, "models"), log)
	require.NoError(t, err)
	index, err := db.OpenIndex(context.Background(), filepath.Join(root, "models", "index.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	p, err := NewPipeline(cfg, filepath.Join(root, "processed"), PipelineDeps{
		Reader: tabular.NewReader(log, ""),
		Writer: tabular.NewWriter(log),
		Store:  store,
		Index:  index,
	}, log)
	require.NoError(t, err)
	return &harness{root: root, pipeline: p, store: store, index: index}
}

func writeCompetition(t *testing.T, dir, competition string, seed int64, degenerate bool) string {
	t.Helper()
	cfg := testkit.DefaultMatchConfig()
	cfg.Competition = competition
	cfg.Seed = seed
	cfg.Degenerate = degenerate
	path, err := testkit.WriteCSV(dir, competition+"_merged.csv", testkit.NewMatchDataGenerator(cfg).Generate())
	require.NoError(t, err)
	return path
}

func TestPipeline_RunPersistsArtifact(t *testing.T) {
	h := newHarness(t, testPipelineConfig())
	path := writeCompetition(t, t.TempDir(), "E0", 42, false)

	report := h.pipeline.Run(context.Background(), "E0", path)
	require.NoError(t, report.Err)
	assert.True(t, report.Completed())
	assert.Equal(t, stage.Persisted, report.Stage)
	require.Len(t, report.Stages, len(stage.Order))
	for i, r := range report.Stages {
		assert.Equal(t, stage.Order[i], r.Stage)
		assert.True(t, r.Success)
	}

	assert.NotEmpty(t, report.Selection.Features)
	assert.LessOrEqual(t, len(report.Selection.Features), 5)
	assert.Contains(t, report.Sanitize.DroppedColumns, "Attendance")
	assert.NotEmpty(t, report.Candidates)
	require.NotNil(t, report.Score)
	assert.FileExists(t, report.ProcessedPath)
	assert.FileExists(t, report.ArtifactPath)
	assert.NotEmpty(t, report.Manifest.RunID)

	a, err := h.store.Load(context.Background(), "E0")
	require.NoError(t, err)
	assert.Equal(t, report.Selection.Features, a.Features)
	assert.Equal(t, report.Manifest.RunID, a.RunID)

	rec, err := h.index.Latest(context.Background(), "E0")
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, rec.Fingerprint)
}

func TestPipeline_Deterministic(t *testing.T) {
	input := writeCompetition(t, t.TempDir(), "E0", 7, false)

	var fingerprints []core.Hash
	var manifests []core.Hash
	for i := 0; i < 2; i++ {
		h := newHarness(t, testPipelineConfig())
		report := h.pipeline.Run(context.Background(), "E0", input)
		require.NoError(t, report.Err)

		a, err := h.store.Load(context.Background(), "E0")
		require.NoError(t, err)
		fingerprints = append(fingerprints, a.Fingerprint)
		manifests = append(manifests, report.Manifest.Fingerprint.Fingerprint)
	}
	assert.Equal(t, fingerprints[0], fingerprints[1])
	assert.Equal(t, manifests[0], manifests[1])
}

func TestPipeline_PreprocessStopsAfterSelection(t *testing.T) {
	h := newHarness(t, testPipelineConfig())
	path := writeCompetition(t, t.TempDir(), "SP1", 3, false)

	report := h.pipeline.Preprocess(context.Background(), "SP1", path)
	require.NoError(t, report.Err)
	assert.Equal(t, stage.Selected, report.Stage)
	assert.False(t, report.Completed())
	assert.FileExists(t, filepath.Join(h.root, "processed", "SP1_merged_preprocessed.csv"))

	_, err := h.store.Load(context.Background(), "SP1")
	assert.True(t, core.IsNotFoundError(err))
}

func TestPipeline_DegenerateCompetitionIsSkipped(t *testing.T) {
	h := newHarness(t, testPipelineConfig())
	path := writeCompetition(t, t.TempDir(), "D1", 1, true)

	report := h.pipeline.Run(context.Background(), "D1", path)
	require.Error(t, report.Err)
	assert.True(t, report.Skipped())
	assert.Equal(t, stage.Sanitized, report.Stage)
	assert.Equal(t, errors.CodeSelectionError, report.ErrorCode)

	last := report.Stages[len(report.Stages)-1]
	assert.Equal(t, stage.Selected, last.Stage)
	assert.False(t, last.Success)
}

func TestPipeline_MissingInput(t *testing.T) {
	h := newHarness(t, testPipelineConfig())

	report := h.pipeline.Run(context.Background(), "E0", filepath.Join(t.TempDir(), "E0.csv"))
	require.Error(t, report.Err)
	assert.Equal(t, stage.Pending, report.Stage)
	assert.False(t, report.Skipped())
}

func TestPipeline_CancelledContext(t *testing.T) {
	h := newHarness(t, testPipelineConfig())
	path := writeCompetition(t, t.TempDir(), "E0", 42, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := h.pipeline.Run(ctx, "E0", path)
	require.Error(t, report.Err)
	assert.Equal(t, errors.CodeCancelled, report.ErrorCode)
}

func TestNewPipeline_RejectsInvalidConfig(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Families = []model.FamilyTag{"xgboost"}
	_, err := NewPipeline(cfg, t.TempDir(), PipelineDeps{}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestDiscoverJobs(t *testing.T) {
	dir := t.TempDir()
	writeCompetition(t, dir, "SP1", 1, false)
	writeCompetition(t, dir, "E0", 2, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	jobs, err := DiscoverJobs(dir)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, core.CompetitionID("E0"), jobs[0].Competition)
	assert.Equal(t, core.CompetitionID("SP1"), jobs[1].Competition)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "E0.csv"), []byte("Div\n"), 0o644))
	_, err = DiscoverJobs(dir)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestTrainer_IsolatesFailures(t *testing.T) {
	h := newHarness(t, testPipelineConfig())
	dir := t.TempDir()
	writeCompetition(t, dir, "E0", 11, false)
	writeCompetition(t, dir, "D1", 12, true)
	writeCompetition(t, dir, "SP1", 13, false)

	jobs, err := DiscoverJobs(dir)
	require.NoError(t, err)

	reports := NewTrainer(h.pipeline, 2, nil).RunAll(context.Background(), jobs)
	require.Len(t, reports, 3)

	byCompetition := make(map[core.CompetitionID]*Report)
	for _, r := range reports {
		byCompetition[r.Competition] = r
	}
	assert.True(t, byCompetition["D1"].Skipped())
	assert.True(t, byCompetition["E0"].Completed())
	assert.True(t, byCompetition["SP1"].Completed())

	persisted, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.CompetitionID{"E0", "SP1"}, persisted)

	records, err := h.index.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// failingStore refuses to save one competition and delegates the rest
type failingStore struct {
	*artifact.LocalStore
	refuse core.CompetitionID
}

func (s *failingStore) Save(ctx context.Context, a *model.Artifact) (string, error) {
	if a.Competition == s.refuse {
		return "", errors.PersistenceError("disk full", nil)
	}
	return s.LocalStore.Save(ctx, a)
}

func TestTrainer_PersistenceFailureIsIsolated(t *testing.T) {
	root := t.TempDir()
	log := logging.Discard()
	local, err := artifact.NewLocalStore(filepath.Join(root, "models"), log)
	require.NoError(t, err)

	p, err := NewPipeline(testPipelineConfig(), filepath.Join(root, "processed"), PipelineDeps{
		Reader: tabular.NewReader(log, ""),
		Writer: tabular.NewWriter(log),
		Store:  &failingStore{LocalStore: local, refuse: "D1"},
	}, log)
	require.NoError(t, err)

	dir := t.TempDir()
	writeCompetition(t, dir, "E0", 21, false)
	writeCompetition(t, dir, "D1", 22, false)
	writeCompetition(t, dir, "SP1", 23, false)
	jobs, err := DiscoverJobs(dir)
	require.NoError(t, err)

	reports := NewTrainer(p, 3, nil).RunAll(context.Background(), jobs)
	require.Len(t, reports, 3)

	byCompetition := make(map[core.CompetitionID]*Report)
	for _, r := range reports {
		byCompetition[r.Competition] = r
	}
	failed := byCompetition["D1"]
	assert.Equal(t, errors.CodePersistenceError, failed.ErrorCode)
	assert.False(t, failed.Skipped())
	assert.False(t, failed.Completed())
	assert.Empty(t, failed.ArtifactPath)

	assert.True(t, byCompetition["E0"].Completed())
	assert.True(t, byCompetition["SP1"].Completed())

	persisted, err := local.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.CompetitionID{"E0", "SP1"}, persisted)
}

func TestFilterJobs(t *testing.T) {
	jobs := []Job{{Competition: "D1", Path: "D1.csv"}, {Competition: "E0", Path: "E0.csv"}, {Competition: "SP1", Path: "SP1.csv"}}

	all, err := FilterJobs(jobs, nil)
	require.NoError(t, err)
	assert.Equal(t, jobs, all)

	picked, err := FilterJobs(jobs, []core.CompetitionID{"SP1", "D1"})
	require.NoError(t, err)
	assert.Equal(t, []Job{jobs[0], jobs[2]}, picked)

	_, err = FilterJobs(jobs, []core.CompetitionID{"E0", "I1"})
	require.Error(t, err)
	assert.True(t, core.IsNotFoundError(err))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.Contains(t, err.Error(), "I1")
}

func TestTrainer_CancelledBatch(t *testing.T) {
	h := newHarness(t, testPipelineConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports := NewTrainer(h.pipeline, 1, nil).RunAll(ctx, []Job{{Competition: "E0", Path: "E0.csv"}})
	require.Len(t, reports, 1)
	assert.Equal(t, errors.CodeCancelled, reports[0].ErrorCode)
	assert.Equal(t, stage.Pending, reports[0].Stage)
}

func TestPredictionService_ScoresFixture(t *testing.T) {
	cfg := testPipelineConfig()
	h := newHarness(t, cfg)
	path := writeCompetition(t, t.TempDir(), "E0", 42, false)
	require.True(t, h.pipeline.Run(context.Background(), "E0", path).Completed())

	log := logging.Discard()
	roles := predict.DefaultRoles(features.Options{GoalThreshold: cfg.GoalThreshold, Window: cfg.RollingWindow})
	svc := NewPredictionService(h.store, tabular.NewReader(log, ""), predict.NewPredictor(roles, 5, log),
		filepath.Join(h.root, "processed"), log)

	p, err := svc.Predict(context.Background(), "E0", predict.Fixture{
		HomeTeam: testkit.TeamName(0),
		AwayTeam: testkit.TeamName(1),
	})
	require.NoError(t, err)
	assert.Equal(t, core.CompetitionID("E0"), p.Competition)
	assert.GreaterOrEqual(t, p.Probability, 0.0)
	assert.LessOrEqual(t, p.Probability, 1.0)
	assert.Equal(t, p.Probability > 0.5, p.Over)

	_, err = svc.Predict(context.Background(), "E0", predict.Fixture{HomeTeam: "Nobody", AwayTeam: testkit.TeamName(1)})
	assert.True(t, core.IsNotFoundError(err))

	_, err = svc.Predict(context.Background(), "SP1", predict.Fixture{HomeTeam: "a", AwayTeam: "b"})
	assert.True(t, core.IsNotFoundError(err))

	require.NoError(t, os.Remove(filepath.Join(h.root, "processed", "E0_merged_preprocessed.csv")))
	_, err = svc.Predict(context.Background(), "E0", predict.Fixture{HomeTeam: testkit.TeamName(0), AwayTeam: testkit.TeamName(1)})
	assert.True(t, core.IsNotFoundError(err))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.Contains(t, err.Error(), "processed table")

	_, err = svc.Predict(context.Background(), "E0", predict.Fixture{})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
