package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/errors"
	"goalcast/internal/learn"
	"goalcast/internal/logging"
	"goalcast/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestKFold_PartitionsEveryRowOnce(t *testing.T) {
	folds, err := KFold{Splits: 4, Seed: 42}.Split(10)
	require.NoError(t, err)
	require.Len(t, folds, 4)

	seen := make(map[int]int)
	for i, f := range folds {
		assert.Len(t, f.Train, 10-len(f.Test))
		for _, r := range f.Test {
			seen[r]++
		}
		want := 2
		if i < 10%4 {
			want = 3
		}
		assert.Len(t, f.Test, want)
	}
	assert.Len(t, seen, 10)
	for _, c := range seen {
		assert.Equal(t, 1, c)
	}
}

func TestKFold_SameSeedSameFolds(t *testing.T) {
	a, err := KFold{Splits: 5, Seed: 7}.Split(50)
	require.NoError(t, err)
	b, err := KFold{Splits: 5, Seed: 7}.Split(50)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := KFold{Splits: 5, Seed: 8}.Split(50)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestKFold_Errors(t *testing.T) {
	_, err := KFold{Splits: 1}.Split(10)
	assert.Error(t, err)
	_, err = KFold{Splits: 5}.Split(3)
	assert.Error(t, err)
}

func TestKFold_SplitSubsetMapsRows(t *testing.T) {
	rows := []int{10, 20, 30, 40}
	folds, err := KFold{Splits: 2, Seed: 1}.SplitSubset(rows)
	require.NoError(t, err)
	for _, f := range folds {
		for _, r := range append(f.Train, f.Test...) {
			assert.Contains(t, rows, r)
		}
	}
}

func TestScore_Metrics(t *testing.T) {
	y := []float64{1, 1, 0, 0}
	pred := []float64{1, 0, 1, 0}

	acc, err := Score(model.MetricAccuracy, y, pred, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, acc, 1e-12)

	prec, err := Score(model.MetricPrecision, y, pred, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, prec, 1e-12)

	f, err := Score(model.MetricF1, y, pred, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-12)

	prec, err = Score(model.MetricPrecision, y, []float64{0, 0, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, prec)

	_, err = Score("recall", y, pred, nil)
	assert.Error(t, err)
}

func TestScore_ROCAUC(t *testing.T) {
	y := []float64{0, 0, 1, 1}

	auc, err := Score(model.MetricROCAUC, y, nil, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, auc, 1e-12)

	auc, err = Score(model.MetricROCAUC, y, nil, []float64{0.1, 0.2, 0.8, 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, auc, 1e-12)

	auc, err = Score(model.MetricROCAUC, y, nil, []float64{0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, auc, 1e-12, "ties count half")

	auc, err = Score(model.MetricROCAUC, []float64{1, 1}, nil, []float64{0.2, 0.9})
	require.NoError(t, err)
	assert.Equal(t, 0.5, auc, "single class fold")
}

func TestPlan(t *testing.T) {
	s := Plan(1000, 20, 10, 3)
	assert.Equal(t, 111, s.MinResources)
	assert.Equal(t, 3, s.Iterations)

	s = Plan(100, 20, 10, 3)
	assert.Equal(t, 40, s.MinResources)
	assert.Equal(t, 1, s.Iterations)

	s = Plan(30, 8, 10, 3)
	assert.Equal(t, 30, s.MinResources, "never more than the rows available")
	assert.Equal(t, 1, s.Iterations)
}

func newEngine(workers int) *Engine {
	return NewEngine(learn.DefaultRegistry(), Options{
		Metric:  model.MetricAccuracy,
		Folds:   3,
		Seed:    42,
		Factor:  3,
		Workers: workers,
	}, logging.Discard())
}

func TestSearch_FindsSeparatingParams(t *testing.T) {
	X, y := testkit.Blobs(120, 3, 3, 1)
	engine := newEngine(4)
	family, err := learn.DefaultRegistry().Family(model.FamilyLogisticRegression)
	require.NoError(t, err)

	c, err := engine.Search(context.Background(), X, y, family)
	require.NoError(t, err)
	assert.Equal(t, model.FamilyLogisticRegression, c.Family)
	assert.Equal(t, 8, c.GridSize)
	assert.Len(t, c.CVScore.Folds, 3)
	assert.Greater(t, c.CVScore.Mean, 0.9)
	assert.Zero(t, c.Failed)
	assert.Equal(t, core.ComputeParamsHash(c.BestParams), c.ParamsHash)
}

func TestSearch_DeterministicAcrossWorkerCounts(t *testing.T) {
	X, y := testkit.Blobs(90, 2, 1, 3)
	family, err := learn.DefaultRegistry().Family(model.FamilyKNN)
	require.NoError(t, err)

	a, err := newEngine(1).Search(context.Background(), X, y, family)
	require.NoError(t, err)
	b, err := newEngine(8).Search(context.Background(), X, y, family)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func failingFamily(failAll bool) learn.Family {
	return learn.Family{
		Tag: "flaky",
		Grid: model.Grid{
			{Name: "ok", Values: []interface{}{false, true}},
		},
		New: func(p model.Params, seed int64) (learn.Model, error) {
			if failAll || !p.Bool("ok", false) {
				return nil, fmt.Errorf("refusing %s", p.Describe())
			}
			return learn.NewLogisticRegression(model.Params{})
		},
	}
}

func TestSearch_ExcludesFailedCombinations(t *testing.T) {
	X, y := testkit.Blobs(60, 2, 3, 2)
	reg := learn.NewRegistry(failingFamily(false))
	engine := NewEngine(reg, Options{Metric: model.MetricF1, Folds: 3, Seed: 1, Workers: 2}, nil)

	family, err := reg.Family("flaky")
	require.NoError(t, err)
	c, err := engine.Search(context.Background(), X, y, family)
	require.NoError(t, err)
	assert.Equal(t, 1, c.BestIndex)
	assert.Equal(t, 1, c.Failed)
}

func TestSearchAll_DropsFailedFamilies(t *testing.T) {
	X, y := testkit.Blobs(60, 2, 3, 2)
	good, err := learn.DefaultRegistry().Family(model.FamilyLinearSVM)
	require.NoError(t, err)
	reg := learn.NewRegistry(failingFamily(true), good)
	engine := NewEngine(reg, Options{Metric: model.MetricAccuracy, Folds: 3, Seed: 1, Workers: 2}, nil)

	cands, err := engine.SearchAll(context.Background(), X, y)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, model.FamilyLinearSVM, cands[0].Family)
}

func TestSearchAll_AllFamiliesFail(t *testing.T) {
	X, y := testkit.Blobs(30, 2, 3, 2)
	engine := NewEngine(learn.NewRegistry(failingFamily(true)), Options{Metric: model.MetricAccuracy, Folds: 3, Workers: 1}, nil)

	_, err := engine.SearchAll(context.Background(), X, y)
	require.Error(t, err)
	assert.Equal(t, errors.CodeSearchError, errors.GetCode(err))
}

func TestSearchAll_Cancelled(t *testing.T) {
	X, y := testkit.Blobs(60, 2, 3, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(2).SearchAll(ctx, X, y)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCancelled, errors.GetCode(err))
}

func TestSearchAll_TimeoutIsCancelled(t *testing.T) {
	X, y := testkit.Blobs(300, 4, 1, 9)
	engine := NewEngine(learn.DefaultRegistry(), Options{
		Metric:  model.MetricAccuracy,
		Folds:   3,
		Seed:    42,
		Factor:  3,
		Workers: 2,
		Timeout: 5 * time.Millisecond,
	}, logging.Discard())

	cands, err := engine.SearchAll(context.Background(), X, y)
	require.Error(t, err)
	assert.Nil(t, cands)
	assert.Equal(t, errors.CodeCancelled, errors.GetCode(err))
}

func TestRows(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	sub, y := Rows(X, []float64{0, 1, 0}, []int{2, 0})
	assert.Equal(t, []float64{5, 6, 1, 2}, sub.RawMatrix().Data)
	assert.Equal(t, []float64{0, 0}, y)
}
