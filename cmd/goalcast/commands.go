package main

import (
	"context"
	"fmt"

	"goalcast/adapters/db"
	"goalcast/app"
	"goalcast/domain/core"
	"goalcast/internal/api"
	"goalcast/internal/features"
	"goalcast/internal/predict"

	"github.com/spf13/cobra"
)

func newPreprocessCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess [input files...]",
		Short: "Engineer, sanitize and select features without training",
		Long: `Run every competition up to feature selection and write
<competition>_merged_preprocessed.csv to the processed directory.

With no arguments every csv/xlsx file in the raw directory is processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args, (*app.Trainer).PreprocessAll)
		},
	}
}

func newTrainCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "train [input files...]",
		Aliases: []string{"run"},
		Short:   "Run the full pipeline and persist one ensemble per competition",
		Long: `Run the full pipeline for each competition: feature synthesis,
sanitizing, selection, successive-halving search, ensemble construction and
artifact persistence. A failing competition is reported and the rest continue.

Example: goalcast train data/raw/E0_merged.csv --families logistic_regression,knn --folds 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args, (*app.Trainer).RunAll)
		},
	}
}

func runBatch(cmd *cobra.Command, opts *globalOptions, args []string, fn func(*app.Trainer, context.Context, []app.Job) []*app.Report) error {
	e, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	jobs, err := e.jobs(cmd.Context(), args, opts.only)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no input files found in %s", e.cfg.Paths.RawDir)
	}
	pipeline, err := e.pipeline()
	if err != nil {
		return err
	}

	reports := fn(app.NewTrainer(pipeline, e.cfg.Pipeline.Parallelism, e.log), cmd.Context(), jobs)
	if err := printJSON(reports); err != nil {
		return err
	}

	var failed int
	for _, r := range reports {
		if r.Err != nil && !r.Skipped() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d competitions failed", failed, len(reports))
	}
	return nil
}

func (e *env) predictionService() *app.PredictionService {
	roles := predict.DefaultRoles(features.Options{
		GoalThreshold: e.cfg.Pipeline.GoalThreshold,
		Window:        e.cfg.Pipeline.RollingWindow,
		PointInTime:   e.cfg.Pipeline.PointInTimeAverages,
	})
	return app.NewPredictionService(e.store, e.reader, predict.NewPredictor(roles, predict.DefaultRecent, e.log),
		e.cfg.Paths.ProcessedDir, e.log)
}

func newPredictCmd(opts *globalOptions) *cobra.Command {
	var fx predict.Fixture

	cmd := &cobra.Command{
		Use:   "predict [competition]",
		Short: "Score an upcoming fixture with a competition's persisted ensemble",
		Long: `Build the fixture row from the home team's recent home matches and the
away team's recent away matches, then print the prediction as JSON.

Example: goalcast predict E0 --home Arsenal --away Chelsea`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			competition, err := core.ParseCompetitionID(args[0])
			if err != nil {
				return err
			}
			opts.noIndex = true
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			prediction, err := e.predictionService().Predict(cmd.Context(), competition, fx)
			if err != nil {
				return err
			}
			return printJSON(prediction)
		},
	}

	cmd.Flags().StringVar(&fx.HomeTeam, "home", "", "Home team name as it appears in the data")
	cmd.Flags().StringVar(&fx.AwayTeam, "away", "", "Away team name as it appears in the data")
	_ = cmd.MarkFlagRequired("home")
	_ = cmd.MarkFlagRequired("away")
	return cmd
}

func newArtifactsCmd(opts *globalOptions) *cobra.Command {
	var history string
	var limit int

	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List persisted artifacts, or one competition's run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if history != "" {
				if e.index == nil {
					return fmt.Errorf("run history needs the artifact index")
				}
				records, err := e.index.History(cmd.Context(), core.CompetitionID(history), limit)
				if err != nil {
					return err
				}
				return printJSON(records)
			}
			if e.index != nil {
				records, err := e.index.List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(records)
			}
			ids, err := e.store.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(ids)
		},
	}

	cmd.Flags().StringVar(&history, "history", "", "Competition whose run history to print")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum history entries")
	return cmd
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve artifacts and predictions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if addr == "" {
				addr = e.cfg.Server.Addr
			}
			var server *api.Server
			if e.index != nil {
				server = api.NewServer(e.store, e.index, e.predictionService(), e.log)
			} else {
				server = api.NewServer(e.store, nil, e.predictionService(), e.log)
			}
			return server.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply artifact index migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.noIndex = true
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			conn, err := db.Open(cmd.Context(), e.cfg.Index.DSN)
			if err != nil {
				return err
			}
			defer conn.Close()

			applied, err := db.NewMigrator(conn).Up(cmd.Context())
			if err != nil {
				return err
			}
			e.log.WithField("applied", applied).Info("[CLI] migrations complete")
			return nil
		},
	}
}
