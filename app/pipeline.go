package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/match"
	"goalcast/domain/model"
	"goalcast/domain/run"
	"goalcast/domain/stage"
	"goalcast/internal/config"
	"goalcast/internal/ensemble"
	"goalcast/internal/errors"
	"goalcast/internal/features"
	"goalcast/internal/ingest"
	"goalcast/internal/learn"
	"goalcast/internal/logging"
	"goalcast/internal/sanitize"
	"goalcast/internal/search"
	"goalcast/internal/selection"
	"goalcast/ports"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Version is recorded in run fingerprints
const Version = "0.3.0"

// Report summarises one competition's run. Stage is the last stage
// reached; Err is set when the run stopped before Persisted.
type Report struct {
	Competition   core.CompetitionID `json:"competition"`
	Manifest      run.Manifest       `json:"manifest"`
	Stage         stage.Name         `json:"stage"`
	Stages        []stage.Result     `json:"stages"`
	Rows          int                `json:"rows"`
	Sanitize      sanitize.Report    `json:"sanitize"`
	Selection     selection.Result   `json:"selection"`
	Candidates    []model.Candidate  `json:"candidates,omitempty"`
	Score         *model.Score       `json:"score,omitempty"`
	ProcessedPath string             `json:"processed_path,omitempty"`
	ArtifactPath  string             `json:"artifact_path,omitempty"`
	Error         string             `json:"error,omitempty"`
	ErrorCode     string             `json:"error_code,omitempty"`
	Err           error              `json:"-"`
}

// Completed reports whether the run persisted an artifact
func (r *Report) Completed() bool {
	return r.Stage == stage.Persisted && r.Err == nil
}

// Skipped reports whether feature selection found nothing usable, which
// skips the competition for this run without being a hard failure.
func (r *Report) Skipped() bool {
	return errors.HasCode(r.Err, errors.CodeSelectionError)
}

// Pipeline runs the per-competition state machine. It holds no
// per-competition state, so one Pipeline serves concurrent competitions.
type Pipeline struct {
	cfg          config.Pipeline
	processedDir string
	reader       ports.TableReader
	writer       ports.TableWriter
	store        ports.ArtifactStore
	index        ports.ArtifactIndex
	registry     *learn.Registry
	engine       *search.Engine
	log          *logrus.Entry
	now          func() time.Time
}

// PipelineDeps bundles the adapters a Pipeline needs. Index may be nil.
type PipelineDeps struct {
	Reader ports.TableReader
	Writer ports.TableWriter
	Store  ports.ArtifactStore
	Index  ports.ArtifactIndex
}

// NewPipeline validates cfg and wires the search engine over the
// configured families.
func NewPipeline(cfg config.Pipeline, processedDir string, deps PipelineDeps, log *logrus.Entry) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := learn.DefaultRegistry().Subset(cfg.Families)
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	log = logging.Component(log, "pipeline")
	engine := search.NewEngine(registry, search.Options{
		Metric:  cfg.ScoringMetric,
		Folds:   cfg.CVFolds,
		Seed:    cfg.Seed,
		Factor:  cfg.HalvingFactor,
		Workers: cfg.SearchWorkers,
		Timeout: cfg.SearchTimeout,
	}, log)
	return &Pipeline{
		cfg:          cfg,
		processedDir: processedDir,
		reader:       deps.Reader,
		writer:       deps.Writer,
		store:        deps.Store,
		index:        deps.Index,
		registry:     registry,
		engine:       engine,
		log:          log,
		now:          time.Now,
	}, nil
}

// Registry returns the families this pipeline tunes
func (p *Pipeline) Registry() *learn.Registry {
	return p.registry
}

// ProcessedPath is where a competition's final table is written
func (p *Pipeline) ProcessedPath(competition core.CompetitionID) string {
	return filepath.Join(p.processedDir, competition.ProcessedFile())
}

// Run takes one competition from its raw table to a persisted artifact
func (p *Pipeline) Run(ctx context.Context, competition core.CompetitionID, inputPath string) *Report {
	return p.execute(ctx, competition, inputPath, stage.Persisted)
}

// Preprocess stops after feature selection, leaving the final table on
// disk and no artifact.
func (p *Pipeline) Preprocess(ctx context.Context, competition core.CompetitionID, inputPath string) *Report {
	return p.execute(ctx, competition, inputPath, stage.Selected)
}

// runState carries values between stages of one run
type runState struct {
	frame    *match.Frame
	records  *match.RecordSet
	table    *match.Table
	final    *match.Table
	features []string
	voting   *ensemble.Voting
	score    model.Score
}

func (p *Pipeline) execute(ctx context.Context, competition core.CompetitionID, inputPath string, until stage.Name) *Report {
	report := &Report{Competition: competition, Stage: stage.Pending}
	tracker := stage.NewTracker()
	st := &runState{}
	log := p.log.WithField("competition", competition)

	steps := []struct {
		name stage.Name
		fn   func(context.Context, *runState, *Report, *logrus.Entry) error
	}{
		{stage.Loaded, func(ctx context.Context, st *runState, r *Report, _ *logrus.Entry) error {
			return p.load(ctx, competition, inputPath, st, r)
		}},
		{stage.Engineered, p.engineer},
		{stage.Sanitized, p.sanitize},
		{stage.Selected, p.selectFeatures},
		{stage.Searched, p.search},
		{stage.Ensembled, p.ensemble},
		{stage.Persisted, p.persist},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			p.fail(report, tracker, errors.Cancelled(err), 0, log)
			break
		}
		start := time.Now()
		if err := step.fn(ctx, st, report, log); err != nil {
			p.fail(report, tracker, err, time.Since(start), log)
			break
		}
		if err := tracker.Advance(step.name, time.Since(start)); err != nil {
			p.fail(report, tracker, errors.InternalError(err.Error()), 0, log)
			break
		}
		if report.Manifest.RunID != "" {
			log = log.WithField("run_id", report.Manifest.RunID)
		}
		if step.name == until {
			break
		}
	}

	report.Stage = tracker.Current()
	report.Stages = tracker.Results()
	if report.Err == nil {
		log.WithField("stage", report.Stage).Info("[Pipeline] competition done")
	}
	return report
}

func (p *Pipeline) fail(report *Report, tracker *stage.Tracker, err error, took time.Duration, log *logrus.Entry) {
	tracker.Fail(err, took)
	report.Err = err
	report.Error = err.Error()
	report.ErrorCode = errors.GetCode(err)

	entry := log.WithError(err).WithField("stage", tracker.Current())
	if errors.HasCode(err, errors.CodeSelectionError) {
		entry.Warn("[Pipeline] feature selection found nothing usable, skipping competition")
		return
	}
	entry.Error("[Pipeline] competition failed")
}

func (p *Pipeline) load(ctx context.Context, competition core.CompetitionID, path string, st *runState, r *Report) error {
	frame, err := p.reader.Read(ctx, path)
	if err != nil {
		return err
	}
	records, err := ingest.Records(frame, ingest.Options{
		GoalThreshold: p.cfg.GoalThreshold,
		SeasonCutoff:  p.cfg.SeasonCutoffMonth,
	})
	if err != nil {
		return err
	}

	configHash, err := run.HashConfig(p.cfg)
	if err != nil {
		return errors.InternalError(err.Error())
	}
	fp := run.NewFingerprint(competition, core.Hash(frame.Digest), configHash, p.cfg.Seed, Version)
	r.Manifest = run.NewManifest(fp, p.now())
	r.Rows = records.Len()
	st.frame, st.records = frame, records
	return nil
}

func (p *Pipeline) engineer(_ context.Context, st *runState, _ *Report, log *logrus.Entry) error {
	synth := features.NewSynthesizer(features.Options{
		GoalThreshold: p.cfg.GoalThreshold,
		Window:        p.cfg.RollingWindow,
		PointInTime:   p.cfg.PointInTimeAverages,
	}, log)
	table, err := synth.Synthesize(st.records)
	if err != nil {
		return err
	}
	st.table = table
	return nil
}

func (p *Pipeline) sanitize(_ context.Context, st *runState, r *Report, log *logrus.Entry) error {
	clean, report := sanitize.NewSanitizer(p.cfg.MissingValueThreshold, log).Apply(st.table)
	r.Sanitize = report
	if clean.Rows() == 0 {
		return errors.DataError("no complete rows remain after dropping nulls")
	}
	st.table = clean
	return nil
}

func (p *Pipeline) selectFeatures(ctx context.Context, st *runState, r *Report, log *logrus.Entry) error {
	selector := selection.NewSelector(selection.Options{
		K:         p.cfg.NumFeatures,
		Threshold: p.cfg.ClusteringThreshold,
		Exclude:   p.cfg.LeakageColumns,
	}, log)
	result := selector.Select(st.table)
	r.Selection = result
	if !result.Ok() {
		return result.Err()
	}

	final, err := st.table.Select(result.Features)
	if err != nil {
		return errors.InternalError(err.Error())
	}
	path := p.ProcessedPath(r.Competition)
	if err := p.writer.Write(ctx, path, final); err != nil {
		return err
	}
	r.ProcessedPath = path
	st.final, st.features = final, result.Features
	return nil
}

// trainingSet is the design matrix and label vector of the final table
type trainingSet struct {
	X *mat.Dense
	Y []float64
}

func (p *Pipeline) trainingData(st *runState) (trainingSet, error) {
	X, err := st.final.Matrix(st.features)
	if err != nil {
		return trainingSet{}, errors.DataError(err.Error())
	}
	y, err := st.final.LabelVector()
	if err != nil {
		return trainingSet{}, errors.DataError(err.Error())
	}
	return trainingSet{X: X, Y: y}, nil
}

func (p *Pipeline) search(ctx context.Context, st *runState, r *Report, _ *logrus.Entry) error {
	data, err := p.trainingData(st)
	if err != nil {
		return err
	}
	candidates, err := p.engine.SearchAll(ctx, data.X, data.Y)
	if err != nil {
		return err
	}
	r.Candidates = candidates
	return nil
}

func (p *Pipeline) ensemble(ctx context.Context, st *runState, r *Report, log *logrus.Entry) error {
	data, err := p.trainingData(st)
	if err != nil {
		return err
	}
	constructor := ensemble.NewConstructor(p.registry, p.engine.Executor(), p.engine.KFold(), ensemble.Options{
		Voting: p.cfg.Voting,
		Metric: p.cfg.ScoringMetric,
		Seed:   p.cfg.Seed,
	}, log)
	voting, score, err := constructor.Build(ctx, data.X, data.Y, r.Candidates)
	if err != nil {
		return err
	}
	st.voting, st.score = voting, score
	r.Score = &score
	return nil
}

func (p *Pipeline) persist(ctx context.Context, st *runState, r *Report, log *logrus.Entry) error {
	artifact, err := st.voting.ToArtifact(ensemble.Envelope{
		Competition:   r.Competition,
		RunID:         r.Manifest.RunID,
		Label:         st.final.Label,
		GoalThreshold: p.cfg.GoalThreshold,
		Metric:        p.cfg.ScoringMetric,
		Features:      st.features,
		Score:         st.score,
		CreatedAt:     p.now(),
	})
	if err != nil {
		return errors.PersistenceError("failed to snapshot ensemble", err)
	}
	location, err := p.store.Save(ctx, artifact)
	if err != nil {
		return err
	}
	r.ArtifactPath = location

	if p.index != nil {
		if err := p.index.Record(ctx, model.RecordOf(artifact, location)); err != nil {
			// The artifact itself is durable; a missing index row only
			// hides it from history queries.
			log.WithError(err).Warn("[Pipeline] artifact saved but not indexed")
		}
	}
	return nil
}

// String renders a one-line summary for CLI output
func (r *Report) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: stopped after %s: %v", r.Competition, r.Stage, r.Err)
	}
	if r.Score != nil {
		return fmt.Sprintf("%s: %s, %d features, score %s", r.Competition, r.Stage, len(r.Selection.Features), r.Score)
	}
	return fmt.Sprintf("%s: %s, %d features", r.Competition, r.Stage, len(r.Selection.Features))
}
