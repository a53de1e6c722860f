package model

import (
	"fmt"
	"math"
	"strings"

	"goalcast/domain/core"

	"github.com/montanaflynn/stats"
)

// FamilyTag names a model family in the closed registry
type FamilyTag string

const (
	FamilyLogisticRegression FamilyTag = "logistic_regression"
	FamilyKNN                FamilyTag = "knn"
	FamilyLinearSVM          FamilyTag = "linear_svm"
	FamilyKernelSVM          FamilyTag = "kernel_svm"
	FamilyRandomForest       FamilyTag = "random_forest"
	FamilyGradientBoosting   FamilyTag = "gradient_boosting"
)

// AllFamilies lists the registry families in ensemble member order
var AllFamilies = []FamilyTag{
	FamilyLogisticRegression,
	FamilyKNN,
	FamilyLinearSVM,
	FamilyKernelSVM,
	FamilyRandomForest,
	FamilyGradientBoosting,
}

func (f FamilyTag) String() string { return string(f) }

// Metric is the cross-validation scoring metric
type Metric string

const (
	MetricAccuracy  Metric = "accuracy"
	MetricPrecision Metric = "precision"
	MetricF1        Metric = "f1"
	MetricROCAUC    Metric = "roc_auc"
)

// ParseMetric validates a metric name
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricAccuracy, MetricPrecision, MetricF1, MetricROCAUC:
		return m, nil
	}
	return "", fmt.Errorf("invalid scoring metric %q: choose from accuracy, precision, f1, roc_auc", s)
}

// NeedsProba reports whether the metric scores probabilities, not labels
func (m Metric) NeedsProba() bool {
	return m == MetricROCAUC
}

// Voting is the ensemble voting strategy
type Voting string

const (
	VotingSoft Voting = "soft"
	VotingHard Voting = "hard"
)

// ParseVoting validates a voting strategy
func ParseVoting(s string) (Voting, error) {
	switch v := Voting(strings.ToLower(strings.TrimSpace(s))); v {
	case VotingSoft, VotingHard:
		return v, nil
	}
	return "", fmt.Errorf("invalid voting strategy %q: choose from soft, hard", s)
}

// Score is a cross-validated score: per-fold values plus mean and
// population standard deviation.
type Score struct {
	Mean  float64   `json:"mean"`
	Std   float64   `json:"std"`
	Folds []float64 `json:"folds"`
}

// NewScore summarises fold scores
func NewScore(folds []float64) Score {
	s := Score{Folds: folds, Mean: math.NaN(), Std: math.NaN()}
	if mean, err := stats.Mean(folds); err == nil {
		s.Mean = mean
	}
	if std, err := stats.StandardDeviationPopulation(folds); err == nil {
		s.Std = std
	}
	return s
}

func (s Score) String() string {
	return fmt.Sprintf("%.4f ± %.4f", s.Mean, s.Std)
}

// Candidate is the tuned outcome of one model family for one competition
type Candidate struct {
	Family     FamilyTag `json:"family"`
	GridSize   int       `json:"grid_size"`
	BestIndex  int       `json:"best_index"`
	BestParams Params    `json:"best_params"`
	ParamsHash core.Hash `json:"params_hash"`
	// SearchScore is the best mean fold score seen in the last halving round.
	SearchScore float64 `json:"search_score"`
	// CVScore re-scores the best estimator on the full data with the shared folds.
	CVScore    Score `json:"cv_score"`
	Iterations int   `json:"iterations"`
	Evaluated  int   `json:"evaluated"`
	Failed     int   `json:"failed"`
}
