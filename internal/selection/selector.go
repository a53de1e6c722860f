// Package selection picks a small, non-redundant, label-relevant feature
// set: mRMR ranking, then rank-correlation clustering with one exemplar
// kept per cluster.
package selection

import (
	"fmt"
	"math"

	"goalcast/domain/core"
	"goalcast/domain/match"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
)

// Options controls a selection run
type Options struct {
	K         int
	Threshold float64
	// Exclude names columns never offered as features, on top of the
	// label. The raw goal counts belong here.
	Exclude []string
	Bins    int
}

// Result is the outcome of a selection: either an ordered feature list
// or the reason selection could not proceed.
type Result struct {
	Features []string   `json:"features"`
	Ranking  []string   `json:"ranking,omitempty"`
	Clusters [][]string `json:"clusters,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Cause    error      `json:"-"`
}

// Selected builds a successful result
func Selected(features, ranking []string, clusters [][]string) Result {
	return Result{Features: features, Ranking: ranking, Clusters: clusters}
}

// Failed builds an unsuccessful result
func Failed(reason string) Result {
	return Result{Reason: reason}
}

// FailedWith builds an unsuccessful result around a domain error
func FailedWith(cause error, reason string) Result {
	return Result{Reason: reason, Cause: cause}
}

// Ok reports whether selection produced features
func (r Result) Ok() bool {
	return r.Reason == "" && len(r.Features) > 0
}

// Err returns the failure as a SelectionError, or nil
func (r Result) Err() error {
	if r.Ok() {
		return nil
	}
	reason := r.Reason
	if reason == "" {
		reason = "no features selected"
	}
	err := errors.SelectionError(reason)
	err.Cause = r.Cause
	return err
}

// Selector runs redundancy-aware feature selection. It owns its
// intermediate matrices for the duration of one call.
type Selector struct {
	opts Options
	log  *logrus.Entry
}

// NewSelector creates a selector
func NewSelector(opts Options, log *logrus.Entry) *Selector {
	if opts.Bins < 2 {
		opts.Bins = DefaultBins
	}
	return &Selector{opts: opts, log: logging.Component(log, "selector")}
}

// Candidates returns the numeric columns offered to selection
func (s *Selector) Candidates(table *match.Table) []string {
	skip := make(map[string]bool, len(s.opts.Exclude)+1)
	skip[table.Label] = true
	for _, name := range s.opts.Exclude {
		skip[name] = true
	}
	var out []string
	for _, name := range table.NumericNames() {
		if !skip[name] {
			out = append(out, name)
		}
	}
	return out
}

// Select ranks and deduplicates the candidate columns of a dense table.
// It never panics: degenerate input yields a Failed result.
func (s *Selector) Select(table *match.Table) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(fmt.Sprintf("selection aborted: %v", r))
		}
		if !result.Ok() {
			s.log.WithField("reason", result.Reason).Warn("[Selector] selection failed")
		}
	}()

	if s.opts.K < 1 {
		return Failed("K must be at least 1")
	}
	if table.Rows() < 3 {
		return FailedWith(core.ErrInsufficientData, fmt.Sprintf("need at least 3 rows, have %d", table.Rows()))
	}

	y, err := table.LabelVector()
	if err != nil {
		return Failed(err.Error())
	}
	labels := classes(y)
	if len(distinct(labels)) < 2 {
		return FailedWith(core.ErrSingleClass, "label has a single class")
	}

	var names []string
	var columns [][]float64
	for _, name := range s.Candidates(table) {
		values, _ := table.Column(name)
		if hasNaN(values) {
			return Failed(fmt.Sprintf("column %s has nulls; sanitize first", name))
		}
		if constant(values) {
			s.log.WithField("column", name).Debug("[Selector] skipping constant column")
			continue
		}
		names = append(names, name)
		columns = append(columns, values)
	}
	if len(names) == 0 {
		return Failed("no non-constant candidate features")
	}

	bins := make([][]int, len(columns))
	for i, c := range columns {
		bins[i] = discretize(c, s.opts.Bins)
	}
	order := rankMRMR(bins, labels, s.opts.K)

	ranked := make([]string, len(order))
	rankedCols := make([][]float64, len(order))
	for i, idx := range order {
		ranked[i] = names[idx]
		rankedCols[i] = columns[idx]
	}

	corr, err := spearmanMatrix(rankedCols)
	if err != nil {
		return Failed(err.Error())
	}
	labelsByFeature := averageLinkage(rowDistances(corr), s.opts.Threshold)

	features, clusters, err := exemplars(ranked, rankedCols, labelsByFeature)
	if err != nil {
		return Failed(err.Error())
	}

	s.log.WithFields(logrus.Fields{
		"candidates": len(names),
		"ranked":     len(ranked),
		"clusters":   len(clusters),
		"selected":   features,
	}).Info("[Selector] features selected")
	return Selected(features, ranked, clusters)
}

// exemplars keeps the highest-variance member of each cluster, the
// earlier-ranked one on equal variance. Clusters are emitted in the order
// their first member appears in the ranking.
func exemplars(ranked []string, columns [][]float64, labels []int) ([]string, [][]string, error) {
	variances := make([]float64, len(columns))
	for i, c := range columns {
		v, err := stats.Variance(c)
		if err != nil || math.IsNaN(v) {
			return nil, nil, fmt.Errorf("variance undefined for %s", ranked[i])
		}
		variances[i] = v
	}

	var features []string
	var clusters [][]string
	best := make(map[int]int)
	slot := make(map[int]int)
	for i, label := range labels {
		pos, seen := slot[label]
		if !seen {
			pos = len(features)
			slot[label] = pos
			best[label] = i
			features = append(features, ranked[i])
			clusters = append(clusters, []string{ranked[i]})
			continue
		}
		clusters[pos] = append(clusters[pos], ranked[i])
		if variances[i] > variances[best[label]] {
			best[label] = i
			features[pos] = ranked[i]
		}
	}
	return features, clusters, nil
}

func distinct(values []int) map[int]struct{} {
	out := make(map[int]struct{})
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func constant(values []float64) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
