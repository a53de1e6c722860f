package search

import (
	"context"
	"fmt"
	"time"

	"goalcast/domain/model"
	"goalcast/internal/learn"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/mat"
)

// FamilyCosts weights one fit of each family against the worker capacity,
// so ensembles of trees do not crowd out the cheap linear fits.
var FamilyCosts = map[model.FamilyTag]int64{
	model.FamilyLogisticRegression: 1,
	model.FamilyKNN:                1,
	model.FamilyLinearSVM:          1,
	model.FamilyKernelSVM:          2,
	model.FamilyRandomForest:       3,
	model.FamilyGradientBoosting:   2,
}

// Executor runs fold fits under a shared weighted capacity
type Executor struct {
	sem      *semaphore.Weighted
	capacity int64
}

// NewExecutor creates an executor with the given number of workers
func NewExecutor(workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{sem: semaphore.NewWeighted(int64(workers)), capacity: int64(workers)}
}

func (x *Executor) cost(tag model.FamilyTag) int64 {
	c, ok := FamilyCosts[tag]
	if !ok {
		c = 1
	}
	if c > x.capacity {
		c = x.capacity
	}
	return c
}

// Fitter builds a fresh unfitted classifier
type Fitter func() (learn.Classifier, error)

// job is one (candidate, fold) fit
type job struct {
	candidate int
	fold      int
}

// outcome is the per-fold result of one job
type outcome struct {
	score    float64
	err      error
	duration time.Duration
}

// CrossValidate scores builders[c] on every fold and returns per-candidate
// fold scores. A candidate with any failing fold reports that error and
// no score; other candidates are unaffected. Only context cancellation
// aborts the whole run.
func (x *Executor) CrossValidate(ctx context.Context, tag model.FamilyTag, builders []Fitter,
	X mat.Matrix, y []float64, folds []Fold, metric model.Metric) ([][]float64, []error, error) {

	results := make([][]outcome, len(builders))
	var jobs []job
	for c := range builders {
		results[c] = make([]outcome, len(folds))
		for f := range folds {
			jobs = append(jobs, job{candidate: c, fold: f})
		}
	}

	// Data is split once per fold and shared read-only by every candidate.
	type split struct {
		trainX, testX *mat.Dense
		trainY, testY []float64
	}
	splits := make([]split, len(folds))
	for f, fold := range folds {
		splits[f].trainX, splits[f].trainY = Rows(X, y, fold.Train)
		splits[f].testX, splits[f].testY = Rows(X, y, fold.Test)
	}

	cost := x.cost(tag)
	g, gctx := errgroup.WithContext(ctx)
	for _, jb := range jobs {
		jb := jb
		g.Go(func() error {
			if err := x.sem.Acquire(gctx, cost); err != nil {
				return err
			}
			defer x.sem.Release(cost)

			start := time.Now()
			s := splits[jb.fold]
			score, err := fitScore(builders[jb.candidate], s.trainX, s.trainY, s.testX, s.testY, metric)
			results[jb.candidate][jb.fold] = outcome{score: score, err: err, duration: time.Since(start)}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	scores := make([][]float64, len(builders))
	errs := make([]error, len(builders))
	for c, row := range results {
		for f, o := range row {
			if o.err != nil {
				errs[c] = fmt.Errorf("fold %d: %w", f, o.err)
				break
			}
			scores[c] = append(scores[c], o.score)
		}
		if errs[c] != nil {
			scores[c] = nil
		}
	}
	return scores, errs, nil
}

// fitScore fits on the training split and scores the test split. Panics
// in a family are turned into errors so one bad combination cannot take
// down the search.
func fitScore(build Fitter, trainX *mat.Dense, trainY []float64, testX *mat.Dense, testY []float64,
	metric model.Metric) (score float64, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fit panicked: %v", r)
		}
	}()

	clf, err := build()
	if err != nil {
		return 0, err
	}
	if err := clf.Fit(trainX, trainY); err != nil {
		return 0, err
	}
	proba, err := clf.PredictProba(testX)
	if err != nil {
		return 0, err
	}
	pred, err := clf.Predict(testX)
	if err != nil {
		return 0, err
	}
	return Score(metric, testY, pred, proba)
}
