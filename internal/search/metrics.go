package search

import (
	"fmt"

	"goalcast/domain/model"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Score evaluates one fold. pred holds 0/1 labels; proba holds P(y=1)
// and is only read for probability metrics.
func Score(metric model.Metric, y, pred, proba []float64) (float64, error) {
	switch metric {
	case model.MetricAccuracy:
		return accuracy(y, pred), nil
	case model.MetricPrecision:
		return precision(y, pred), nil
	case model.MetricF1:
		return f1(y, pred), nil
	case model.MetricROCAUC:
		return rocAUC(y, proba), nil
	}
	return 0, fmt.Errorf("unknown metric %q", metric)
}

func confusion(y, pred []float64) (tp, fp, fn, tn float64) {
	for i := range y {
		switch {
		case pred[i] == 1 && y[i] == 1:
			tp++
		case pred[i] == 1:
			fp++
		case y[i] == 1:
			fn++
		default:
			tn++
		}
	}
	return
}

func accuracy(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	tp, _, _, tn := confusion(y, pred)
	return (tp + tn) / float64(len(y))
}

// precision is 0 when nothing is predicted positive
func precision(y, pred []float64) float64 {
	tp, fp, _, _ := confusion(y, pred)
	if tp+fp == 0 {
		return 0
	}
	return tp / (tp + fp)
}

func f1(y, pred []float64) float64 {
	tp, fp, fn, _ := confusion(y, pred)
	if 2*tp+fp+fn == 0 {
		return 0
	}
	return 2 * tp / (2*tp + fp + fn)
}

// rocAUC integrates the ROC curve. A fold holding a single class has no
// curve and scores 0.5.
func rocAUC(y, proba []float64) float64 {
	pos := floats.Sum(y)
	if pos == 0 || int(pos) == len(y) {
		return 0.5
	}
	scores := append([]float64(nil), proba...)
	idx := make([]int, len(scores))
	floats.Argsort(scores, idx)
	classes := make([]bool, len(scores))
	for i, j := range idx {
		classes[i] = y[j] == 1
	}
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
