// Package features derives season-scoped and rolling per-team statistics
// from match records.
package features

import (
	"fmt"
	"sort"
	"time"

	"goalcast/domain/match"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
)

// Options controls synthesis
type Options struct {
	GoalThreshold float64
	Window        int
	// PointInTime switches season averages from whole-season means to
	// expanding means over matches up to and including the current one.
	PointInTime bool
}

// Role is the side a team played on
type Role string

const (
	RoleHome Role = "Home"
	RoleAway Role = "Away"
)

// Roles in column emission order
var Roles = []Role{RoleHome, RoleAway}

func (r Role) team(rec *match.Record) string {
	if r == RoleHome {
		return rec.HomeTeam
	}
	return rec.AwayTeam
}

func (r Role) scored(rec *match.Record) float64 {
	if r == RoleHome {
		return rec.HomeGoals
	}
	return rec.AwayGoals
}

func (r Role) conceded(rec *match.Record) float64 {
	if r == RoleHome {
		return rec.AwayGoals
	}
	return rec.HomeGoals
}

// Columns lists the synthesized column names of one role
type Columns struct {
	AvgScored       string
	AvgConceded     string
	OverPerc        string
	LastAvgScored   string
	LastAvgConceded string
	LastOverCount   string
	LastOverPerc    string
}

// All returns the names in emission order
func (c Columns) All() []string {
	return []string{c.AvgScored, c.AvgConceded, c.OverPerc, c.LastAvgScored, c.LastAvgConceded, c.LastOverCount, c.LastOverPerc}
}

// ColumnsFor names the columns of a role, e.g. AvgHomeGoalsScored,
// HomeOver2.5Perc, AvgLast5HomeGoalsScored, Last5HomeOver2.5Count.
func ColumnsFor(role Role, opts Options) Columns {
	over := match.LabelColumn(opts.GoalThreshold)
	last := fmt.Sprintf("Last%d%s", opts.Window, role)
	return Columns{
		AvgScored:       fmt.Sprintf("Avg%sGoalsScored", role),
		AvgConceded:     fmt.Sprintf("Avg%sGoalsConceded", role),
		OverPerc:        fmt.Sprintf("%s%sPerc", role, over),
		LastAvgScored:   fmt.Sprintf("Avg%sGoalsScored", last),
		LastAvgConceded: fmt.Sprintf("Avg%sGoalsConceded", last),
		LastOverCount:   fmt.Sprintf("%s%sCount", last, over),
		LastOverPerc:    fmt.Sprintf("%s%sPerc", last, over),
	}
}

// Synthesizer augments match records with temporal team statistics
type Synthesizer struct {
	opts Options
	log  *logrus.Entry
}

// NewSynthesizer creates a synthesizer
func NewSynthesizer(opts Options, log *logrus.Entry) *Synthesizer {
	if opts.Window < 1 {
		opts.Window = 5
	}
	return &Synthesizer{opts: opts, log: logging.Component(log, "synthesizer")}
}

// Synthesize builds the feature table. Rows keep ingestion order; raw
// columns, including the goal counts, are carried through unchanged.
func (s *Synthesizer) Synthesize(set *match.RecordSet) (*match.Table, error) {
	if set == nil || set.Len() == 0 {
		return nil, errors.DataError("no match records to synthesize")
	}
	records := set.Records
	n := len(records)

	dates := make([]time.Time, n)
	for i := range records {
		dates[i] = records[i].Date
	}
	label := match.LabelColumn(s.opts.GoalThreshold)
	table := match.NewTable(dates, label)

	text := func(f func(r *match.Record) string) []string {
		out := make([]string, n)
		for i := range records {
			out[i] = f(&records[i])
		}
		return out
	}
	if err := table.AddCategorical(match.ColHomeTeam, text(func(r *match.Record) string { return r.HomeTeam })); err != nil {
		return nil, errors.DataError(err.Error())
	}
	if err := table.AddCategorical(match.ColAwayTeam, text(func(r *match.Record) string { return r.AwayTeam })); err != nil {
		return nil, errors.DataError(err.Error())
	}
	if err := table.AddCategorical(match.ColSeason, text(func(r *match.Record) string { return r.Season.String() })); err != nil {
		return nil, errors.DataError(err.Error())
	}
	for _, name := range set.CategoricalOrder {
		if err := table.AddCategorical(name, text(func(r *match.Record) string { return r.Categorical[name] })); err != nil {
			return nil, errors.DataError(err.Error())
		}
	}

	for _, name := range set.NumericOrder {
		values := make([]float64, n)
		for i := range records {
			values[i] = records[i].Stats[name]
		}
		if err := table.AddNumeric(name, values); err != nil {
			return nil, errors.DataError(err.Error())
		}
	}
	labels := make([]float64, n)
	for i := range records {
		labels[i] = records[i].Label
	}
	if err := table.AddNumeric(label, labels); err != nil {
		return nil, errors.DataError(err.Error())
	}

	for _, role := range Roles {
		cols := ColumnsFor(role, s.opts)
		groups := groupByTeam(records, role)

		seasonCols := s.seasonAverages(records, role, groups)
		rollingCols := s.rolling(records, role, groups)
		for _, c := range []struct {
			name   string
			values []float64
		}{
			{cols.AvgScored, seasonCols[0]},
			{cols.AvgConceded, seasonCols[1]},
			{cols.OverPerc, seasonCols[2]},
			{cols.LastAvgScored, rollingCols[0]},
			{cols.LastAvgConceded, rollingCols[1]},
			{cols.LastOverCount, rollingCols[2]},
			{cols.LastOverPerc, rollingCols[3]},
		} {
			if err := table.AddNumeric(c.name, c.values); err != nil {
				return nil, errors.DataError(err.Error())
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"rows":    n,
		"columns": len(table.Numeric) + len(table.Categorical),
	}).Debug("[Synthesizer] features synthesized")
	return table, nil
}

// groupByTeam returns, per (season, team) in the given role, record
// indices in time order. Same-date matches keep ingestion order.
func groupByTeam(records []match.Record, role Role) [][]int {
	type key struct {
		season match.Season
		team   string
	}
	index := make(map[key]int)
	var groups [][]int
	for i := range records {
		k := key{records[i].Season, role.team(&records[i])}
		g, ok := index[k]
		if !ok {
			g = len(groups)
			index[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool {
			ra, rb := &records[g[a]], &records[g[b]]
			if !ra.Date.Equal(rb.Date) {
				return ra.Date.Before(rb.Date)
			}
			return ra.Seq < rb.Seq
		})
	}
	return groups
}

// seasonAverages returns scored, conceded and over-threshold share
func (s *Synthesizer) seasonAverages(records []match.Record, role Role, groups [][]int) [3][]float64 {
	var out [3][]float64
	for c := range out {
		out[c] = make([]float64, len(records))
	}
	for _, g := range groups {
		scored := make([]float64, len(g))
		conceded := make([]float64, len(g))
		over := make([]float64, len(g))
		for j, idx := range g {
			scored[j] = role.scored(&records[idx])
			conceded[j] = role.conceded(&records[idx])
			over[j] = records[idx].Label
		}
		for j, idx := range g {
			upto := len(g)
			if s.opts.PointInTime {
				upto = j + 1
			}
			out[0][idx] = round2(mean(scored[:upto]))
			out[1][idx] = round2(mean(conceded[:upto]))
			out[2][idx] = round2(mean(over[:upto]))
		}
	}
	return out
}

// rolling returns windowed scored mean, conceded mean, over count and
// over share. The window at position j covers positions max(0, j-w+1)..j
// of the team's own time-ordered matches, so it never sees a later match.
func (s *Synthesizer) rolling(records []match.Record, role Role, groups [][]int) [4][]float64 {
	var out [4][]float64
	for c := range out {
		out[c] = make([]float64, len(records))
	}
	w := s.opts.Window
	for _, g := range groups {
		for j, idx := range g {
			lo := j - w + 1
			if lo < 0 {
				lo = 0
			}
			window := g[lo : j+1]
			scored := make([]float64, len(window))
			conceded := make([]float64, len(window))
			over := make([]float64, len(window))
			for k, wi := range window {
				scored[k] = role.scored(&records[wi])
				conceded[k] = role.conceded(&records[wi])
				over[k] = records[wi].Label
			}
			count, _ := stats.Sum(over)
			out[0][idx] = round2(mean(scored))
			out[1][idx] = round2(mean(conceded))
			out[2][idx] = count
			out[3][idx] = round2(count / float64(len(window)))
		}
	}
	return out
}

func mean(values []float64) float64 {
	m, _ := stats.Mean(values)
	return m
}

func round2(v float64) float64 {
	r, _ := stats.Round(v, 2)
	return r
}
