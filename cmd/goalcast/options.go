package main

import (
	"context"
	"os"

	"goalcast/adapters/artifact"
	"goalcast/adapters/db"
	"goalcast/adapters/tabular"
	"goalcast/app"
	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/config"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalOptions are flags shared by every command. Set flags win over the
// environment and the config file.
type globalOptions struct {
	configPath  string
	logLevel    string
	numFeatures int
	threshold   float64
	metric      string
	folds       int
	voting      string
	seed        int64
	parallelism int
	families    []string
	only        []string
	noIndex     bool
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "YAML config file (overrides GOALCAST_CONFIG)")
	f.StringVar(&o.logLevel, "log-level", "", "error|warn|info|debug")
	f.IntVar(&o.numFeatures, "num-features", 0, "Features kept by mRMR before clustering")
	f.Float64Var(&o.threshold, "clustering-threshold", 0, "Average-linkage distance threshold")
	f.StringVar(&o.metric, "metric", "", "accuracy|precision|f1|roc_auc")
	f.IntVar(&o.folds, "folds", 0, "Cross-validation folds")
	f.StringVar(&o.voting, "voting", "", "soft|hard")
	f.Int64Var(&o.seed, "seed", 0, "Random seed")
	f.IntVar(&o.parallelism, "parallelism", 0, "Competitions trained concurrently")
	f.StringSliceVar(&o.families, "families", nil, "Model families to tune")
	f.StringSliceVar(&o.only, "competitions", nil, "Restrict discovered inputs to these competition codes")
	f.BoolVar(&o.noIndex, "no-index", false, "Do not open the artifact index database")
}

func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	if o.configPath != "" {
		if err := os.Setenv("GOALCAST_CONFIG", o.configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	p := &cfg.Pipeline
	if flags.Changed("num-features") {
		p.NumFeatures = o.numFeatures
	}
	if flags.Changed("clustering-threshold") {
		p.ClusteringThreshold = o.threshold
	}
	if flags.Changed("metric") {
		if p.ScoringMetric, err = model.ParseMetric(o.metric); err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
	}
	if flags.Changed("folds") {
		p.CVFolds = o.folds
	}
	if flags.Changed("voting") {
		if p.Voting, err = model.ParseVoting(o.voting); err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
	}
	if flags.Changed("seed") {
		p.Seed = o.seed
	}
	if flags.Changed("parallelism") {
		p.Parallelism = o.parallelism
	}
	if flags.Changed("families") {
		p.Families = p.Families[:0]
		for _, name := range o.families {
			p.Families = append(p.Families, model.FamilyTag(name))
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env is the wired application for one command invocation
type env struct {
	cfg    *config.Config
	log    *logrus.Entry
	reader *tabular.Reader
	writer *tabular.Writer
	store  *artifact.LocalStore
	index  *db.Index
}

func (o *globalOptions) open(cmd *cobra.Command) (*env, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	log := logrus.NewEntry(logging.New(cfg.Log.Level, cfg.Log.Format))

	store, err := artifact.NewLocalStore(cfg.Paths.ModelsDir, log)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:    cfg,
		log:    log,
		reader: tabular.NewReader(log, ""),
		writer: tabular.NewWriter(log),
		store:  store,
	}
	if !o.noIndex && cfg.Index.DSN != "" {
		index, err := db.OpenIndex(cmd.Context(), cfg.Index.DSN, log)
		if err != nil {
			return nil, err
		}
		e.index = index
	}
	return e, nil
}

func (e *env) close() {
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			e.log.WithError(err).Warn("[CLI] failed to close artifact index")
		}
	}
}

func (e *env) pipeline() (*app.Pipeline, error) {
	deps := app.PipelineDeps{Reader: e.reader, Writer: e.writer, Store: e.store}
	if e.index != nil {
		deps.Index = e.index
	}
	return app.NewPipeline(e.cfg.Pipeline, e.cfg.Paths.ProcessedDir, deps, e.log)
}

// jobs resolves positional input files, or scans the raw directory when
// none are given
func (e *env) jobs(ctx context.Context, args, only []string) ([]app.Job, error) {
	if len(args) == 0 {
		jobs, err := app.DiscoverJobs(e.cfg.Paths.RawDir)
		if err != nil {
			return nil, err
		}
		competitions := make([]core.CompetitionID, 0, len(only))
		for _, code := range only {
			c, err := core.ParseCompetitionID(code)
			if err != nil {
				return nil, errors.WithCode(errors.CodeInvalidInput, err)
			}
			competitions = append(competitions, c)
		}
		return app.FilterJobs(jobs, competitions)
	}
	jobs := make([]app.Job, 0, len(args))
	for _, path := range args {
		job, err := app.JobFor(path)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, ctx.Err()
}
