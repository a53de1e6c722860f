package ensemble

import (
	"context"
	"fmt"

	"goalcast/domain/model"
	"goalcast/internal/errors"
	"goalcast/internal/learn"
	"goalcast/internal/logging"
	"goalcast/internal/search"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Tag is the executor cost key for whole-ensemble fits
const Tag model.FamilyTag = "voting_ensemble"

// Options configures the constructor
type Options struct {
	Voting model.Voting
	Metric model.Metric
	Seed   int64
}

// Constructor re-instantiates tuned candidates into a voting ensemble,
// scores it with the search folds and fits it on all rows.
type Constructor struct {
	registry *learn.Registry
	exec     *search.Executor
	kfold    search.KFold
	opts     Options
	log      *logrus.Entry
}

// NewConstructor creates a constructor. kfold must be the splitter the
// search engine used so both stages see identical folds.
func NewConstructor(registry *learn.Registry, exec *search.Executor, kfold search.KFold, opts Options, log *logrus.Entry) *Constructor {
	return &Constructor{
		registry: registry,
		exec:     exec,
		kfold:    kfold,
		opts:     opts,
		log:      logging.Component(log, "ensemble"),
	}
}

// fresh builds an unfitted ensemble from candidates
func (c *Constructor) fresh(candidates []model.Candidate) (*Voting, error) {
	members := make([]Member, len(candidates))
	for i, cand := range candidates {
		m, err := c.registry.New(cand.Family, cand.BestParams, c.opts.Seed)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", cand.Family, err)
		}
		members[i] = Member{Params: cand.BestParams, Score: cand.CVScore, Model: m}
	}
	return NewVoting(c.opts.Voting, members), nil
}

// Build returns the fitted ensemble and its cross-validated score
func (c *Constructor) Build(ctx context.Context, X mat.Matrix, y []float64, candidates []model.Candidate) (*Voting, model.Score, error) {
	if len(candidates) == 0 {
		return nil, model.Score{}, errors.EnsembleError("no tuned candidates to combine", nil)
	}
	n, _ := X.Dims()
	folds, err := c.kfold.Split(n)
	if err != nil {
		return nil, model.Score{}, errors.EnsembleError("cannot fold training rows", err)
	}

	build := func() (learn.Classifier, error) { return c.fresh(candidates) }
	scores, errs, err := c.exec.CrossValidate(ctx, Tag, []search.Fitter{build}, X, y, folds, c.opts.Metric)
	if err != nil {
		return nil, model.Score{}, errors.Cancelled(err)
	}
	if errs[0] != nil {
		return nil, model.Score{}, errors.EnsembleError("ensemble cross-validation failed", errs[0])
	}
	score := model.NewScore(scores[0])

	if err := ctx.Err(); err != nil {
		return nil, model.Score{}, errors.Cancelled(err)
	}
	final, err := c.fresh(candidates)
	if err != nil {
		return nil, model.Score{}, errors.EnsembleError("cannot instantiate members", err)
	}
	if err := final.Fit(X, y); err != nil {
		return nil, model.Score{}, errors.EnsembleError("ensemble fit failed", err)
	}

	c.log.WithFields(logrus.Fields{
		"voting":  c.opts.Voting,
		"members": len(final.Members),
	}).Infof("[Ensemble] %s %s", c.opts.Metric, score)
	return final, score, nil
}
