package search

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/errors"
	"goalcast/internal/learn"
	"goalcast/internal/logging"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Options configures the engine
type Options struct {
	Metric  model.Metric
	Folds   int
	Seed    int64
	Factor  int
	Workers int
	// Timeout bounds SearchAll; zero means no bound.
	Timeout time.Duration
}

// Engine runs successive-halving grid search for each registry family.
// The registry is read-only; each Search call owns its scratch state.
type Engine struct {
	registry *learn.Registry
	opts     Options
	exec     *Executor
	log      *logrus.Entry
}

// NewEngine creates a search engine
func NewEngine(registry *learn.Registry, opts Options, log *logrus.Entry) *Engine {
	if opts.Factor < 2 {
		opts.Factor = 3
	}
	return &Engine{
		registry: registry,
		opts:     opts,
		exec:     NewExecutor(opts.Workers),
		log:      logging.Component(log, "search"),
	}
}

// KFold returns the splitter shared by search and ensemble scoring
func (e *Engine) KFold() KFold {
	return KFold{Splits: e.opts.Folds, Seed: e.opts.Seed}
}

// Executor exposes the fit executor so ensemble scoring shares capacity
func (e *Engine) Executor() *Executor {
	return e.exec
}

// Schedule is the halving plan for one family
type Schedule struct {
	MinResources int
	Iterations   int
}

// Plan computes the halving schedule for n rows and a grid of size
// candidates. The smallest round gets enough rows for two samples of each
// class in every fold; with the exhaust rule the first round is then
// enlarged so the last required round uses as many rows as possible.
func Plan(n, candidates, folds, factor int) Schedule {
	minRes := 2 * folds * 2
	required := 1
	for c := candidates; c > 1 && c >= factor; c /= factor {
		required++
	}
	if r := n / ipow(factor, required-1); r > minRes {
		minRes = r
	}
	if minRes > n {
		minRes = n
	}
	possible := 1
	for r := n / minRes; r >= factor; r /= factor {
		possible++
	}
	iterations := required
	if possible < iterations {
		iterations = possible
	}
	return Schedule{MinResources: minRes, Iterations: iterations}
}

func ipow(b, e int) int {
	out := 1
	for i := 0; i < e; i++ {
		out *= b
	}
	return out
}

type contender struct {
	index  int
	params model.Params
	mean   float64
}

// Search tunes one family. Failed combinations are dropped from the
// round they fail in; if every combination fails the family fails.
func (e *Engine) Search(ctx context.Context, X mat.Matrix, y []float64, family learn.Family) (model.Candidate, error) {
	n, _ := X.Dims()
	log := e.log.WithField("family", family.Tag)
	grid := family.Grid.Expand()
	if len(grid) == 0 {
		return model.Candidate{}, errors.SearchError(fmt.Sprintf("%s has an empty grid", family.Tag), nil)
	}

	kf := e.KFold()
	fullFolds, err := kf.Split(n)
	if err != nil {
		return model.Candidate{}, errors.SearchError(fmt.Sprintf("%s: cannot fold %d rows", family.Tag, n), err)
	}

	plan := Plan(n, len(grid), e.opts.Folds, e.opts.Factor)
	perm := rand.New(rand.NewSource(e.opts.Seed)).Perm(n)

	alive := make([]contender, len(grid))
	for i, p := range grid {
		alive[i] = contender{index: i, params: p}
	}
	result := model.Candidate{Family: family.Tag, GridSize: len(grid)}
	var lastErr error

	for iter := 0; iter < plan.Iterations && len(alive) > 0; iter++ {
		resources := plan.MinResources * ipow(e.opts.Factor, iter)
		folds := fullFolds
		if resources < n {
			subset := append([]int(nil), perm[:resources]...)
			sort.Ints(subset)
			if folds, err = kf.SplitSubset(subset); err != nil {
				return model.Candidate{}, errors.SearchError(fmt.Sprintf("%s: cannot fold round %d", family.Tag, iter), err)
			}
		} else {
			resources = n
		}

		builders := make([]Fitter, len(alive))
		for i, c := range alive {
			builders[i] = e.fitter(family.Tag, c.params)
		}
		scores, errs, err := e.exec.CrossValidate(ctx, family.Tag, builders, X, y, folds, e.opts.Metric)
		if err != nil {
			return model.Candidate{}, errors.Cancelled(err)
		}

		survivors := alive[:0]
		for i, c := range alive {
			result.Evaluated++
			if errs[i] != nil {
				result.Failed++
				lastErr = errs[i]
				log.WithError(errs[i]).Debugf("[Search] combination %d %s failed", c.index, c.params.Describe())
				continue
			}
			c.mean, _ = stats.Mean(scores[i])
			survivors = append(survivors, c)
		}
		sort.SliceStable(survivors, func(a, b int) bool {
			if survivors[a].mean != survivors[b].mean {
				return survivors[a].mean > survivors[b].mean
			}
			return survivors[a].index < survivors[b].index
		})
		result.Iterations = iter + 1
		log.Debugf("[Search] round %d: %d rows, %d/%d combinations scored", iter, resources, len(survivors), len(alive))

		if iter == plan.Iterations-1 || len(survivors) <= 1 {
			alive = survivors
			break
		}
		keep := (len(survivors) + e.opts.Factor - 1) / e.opts.Factor
		alive = survivors[:keep]
	}

	if len(alive) == 0 {
		return model.Candidate{}, errors.SearchError(fmt.Sprintf("every %s combination failed", family.Tag), lastErr)
	}
	best := alive[0]
	result.BestIndex = best.index
	result.BestParams = best.params
	result.ParamsHash = core.ComputeParamsHash(best.params)
	result.SearchScore = best.mean

	scores, errs, err := e.exec.CrossValidate(ctx, family.Tag, []Fitter{e.fitter(family.Tag, best.params)}, X, y, fullFolds, e.opts.Metric)
	if err != nil {
		return model.Candidate{}, errors.Cancelled(err)
	}
	if errs[0] != nil {
		return model.Candidate{}, errors.SearchError(fmt.Sprintf("%s best estimator failed to re-score", family.Tag), errs[0])
	}
	result.CVScore = model.NewScore(scores[0])

	log.WithFields(logrus.Fields{
		"best_index": best.index,
		"evaluated":  result.Evaluated,
		"failed":     result.Failed,
	}).Infof("[Search] %s %s: %s %s", family.Tag, best.params.Describe(), e.opts.Metric, result.CVScore)
	return result, nil
}

func (e *Engine) fitter(tag model.FamilyTag, params model.Params) Fitter {
	seed := e.opts.Seed
	return func() (learn.Classifier, error) {
		m, err := e.registry.New(tag, params, seed)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// SearchAll tunes every registry family concurrently. Families that fail
// entirely are logged and dropped; the rest come back in registry order.
// It fails only when no family survives or the context ends.
func (e *Engine) SearchAll(ctx context.Context, X mat.Matrix, y []float64) ([]model.Candidate, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	tags := e.registry.Tags()
	found := make([]*model.Candidate, len(tags))
	failures := make([]error, len(tags))

	var g errgroup.Group
	for i, tag := range tags {
		i, tag := i, tag
		g.Go(func() error {
			family, err := e.registry.Family(tag)
			if err != nil {
				failures[i] = err
				return nil
			}
			c, err := e.Search(ctx, X, y, family)
			if err != nil {
				failures[i] = err
				return nil
			}
			found[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}

	var out []model.Candidate
	var lastErr error
	for i, c := range found {
		if c == nil {
			lastErr = failures[i]
			e.log.WithError(failures[i]).Warnf("[Search] dropping family %s", tags[i])
			continue
		}
		out = append(out, *c)
	}
	if len(out) == 0 {
		return nil, errors.SearchError("no model family could be tuned", lastErr)
	}
	return out, nil
}
