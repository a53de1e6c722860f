package features

import (
	"testing"
	"time"

	"goalcast/domain/match"
	"goalcast/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opts = Options{GoalThreshold: 2.5, Window: 5}

func day(d int) time.Time {
	return time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func rec(seq int, date time.Time, home, away string, hg, ag float64) match.Record {
	r := match.Record{
		Seq:         seq,
		Date:        date,
		Season:      match.SeasonOf(date, match.DefaultSeasonCutoff),
		HomeTeam:    home,
		AwayTeam:    away,
		HomeGoals:   hg,
		AwayGoals:   ag,
		Stats:       map[string]float64{"FTHG": hg, "FTAG": ag},
		Categorical: map[string]string{},
	}
	if hg+ag > 2.5 {
		r.Label = 1
	}
	return r
}

// teamAtHome builds n home matches of team A on sequential days
func teamAtHome(goals []float64) *match.RecordSet {
	set := &match.RecordSet{NumericOrder: []string{"FTHG", "FTAG"}}
	for i, g := range goals {
		set.Records = append(set.Records, rec(i, day(i), "A", "B", g, 0))
	}
	return set
}

func column(t *testing.T, table *match.Table, name string) []float64 {
	t.Helper()
	values, ok := table.Column(name)
	require.True(t, ok, "missing column %s", name)
	return values
}

func TestSynthesize_ColumnNames(t *testing.T) {
	table, err := NewSynthesizer(opts, logging.Discard()).Synthesize(teamAtHome([]float64{1, 2}))
	require.NoError(t, err)

	for _, name := range []string{
		"Over2.5",
		"AvgHomeGoalsScored", "AvgHomeGoalsConceded", "HomeOver2.5Perc",
		"AvgLast5HomeGoalsScored", "AvgLast5HomeGoalsConceded", "Last5HomeOver2.5Count", "Last5HomeOver2.5Perc",
		"AvgAwayGoalsScored", "AvgAwayGoalsConceded", "AwayOver2.5Perc",
		"AvgLast5AwayGoalsScored", "AvgLast5AwayGoalsConceded", "Last5AwayOver2.5Count", "Last5AwayOver2.5Perc",
	} {
		assert.True(t, table.HasColumn(name), name)
	}
	assert.True(t, table.HasColumn("FTHG"), "raw goal columns are carried through")
	assert.Equal(t, []string{"HomeTeam", "AwayTeam", "Season"}, table.CategoricalNames())
}

func TestSynthesize_RollingMinimumWindowOfOne(t *testing.T) {
	table, err := NewSynthesizer(opts, logging.Discard()).Synthesize(teamAtHome([]float64{3, 1, 2}))
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 2, 2}, column(t, table, "AvgLast5HomeGoalsScored"))
	assert.Equal(t, []float64{1, 1, 1}, column(t, table, "Last5HomeOver2.5Count"))
	assert.Equal(t, []float64{1, 0.5, 0.33}, column(t, table, "Last5HomeOver2.5Perc"))
}

func TestSynthesize_WindowSlides(t *testing.T) {
	table, err := NewSynthesizer(Options{GoalThreshold: 2.5, Window: 2}, logging.Discard()).
		Synthesize(teamAtHome([]float64{4, 0, 2, 6}))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 2, 1, 4}, column(t, table, "AvgLast2HomeGoalsScored"))
}

// A later match must never change a value computed for an earlier one.
func TestSynthesize_NoLeakageFromLaterMatches(t *testing.T) {
	goals := []float64{1, 0, 2, 1, 3, 0, 1, 2}
	base, err := NewSynthesizer(opts, logging.Discard()).Synthesize(teamAtHome(goals))
	require.NoError(t, err)

	rolling := []string{
		"AvgLast5HomeGoalsScored", "AvgLast5HomeGoalsConceded",
		"Last5HomeOver2.5Count", "Last5HomeOver2.5Perc",
	}
	for i := range goals {
		changed := append([]float64(nil), goals...)
		for j := i + 1; j < len(changed); j++ {
			changed[j] = 9
		}
		other, err := NewSynthesizer(opts, logging.Discard()).Synthesize(teamAtHome(changed))
		require.NoError(t, err)
		for _, name := range rolling {
			assert.Equal(t, column(t, base, name)[:i+1], column(t, other, name)[:i+1], "%s at match %d", name, i)
		}
	}
}

func TestSynthesize_PointInTimeAverages(t *testing.T) {
	set := teamAtHome([]float64{1, 3, 2})

	full, err := NewSynthesizer(opts, logging.Discard()).Synthesize(set)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, column(t, full, "AvgHomeGoalsScored"))

	pit := opts
	pit.PointInTime = true
	expanding, err := NewSynthesizer(pit, logging.Discard()).Synthesize(set)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 2}, column(t, expanding, "AvgHomeGoalsScored"))
}

func TestSynthesize_HomeAndAwayWindowsAdvanceSeparately(t *testing.T) {
	set := &match.RecordSet{NumericOrder: []string{"FTHG", "FTAG"}}
	set.Records = []match.Record{
		rec(0, day(0), "A", "B", 2, 0),
		rec(1, day(1), "C", "A", 1, 4),
		rec(2, day(2), "A", "C", 0, 0),
	}
	table, err := NewSynthesizer(opts, logging.Discard()).Synthesize(set)
	require.NoError(t, err)

	home := column(t, table, "AvgLast5HomeGoalsScored")
	away := column(t, table, "AvgLast5AwayGoalsScored")
	assert.Equal(t, 2.0, home[0])
	assert.Equal(t, 1.0, home[2], "A's home window ignores the away match")
	assert.Equal(t, 4.0, away[1])
}

func TestSynthesize_SeasonBoundaryResetsWindow(t *testing.T) {
	set := &match.RecordSet{NumericOrder: []string{"FTHG", "FTAG"}}
	july := time.Date(2024, time.July, 20, 0, 0, 0, 0, time.UTC)
	august := time.Date(2024, time.August, 10, 0, 0, 0, 0, time.UTC)
	set.Records = []match.Record{
		rec(0, july, "A", "B", 5, 0),
		rec(1, august, "A", "B", 1, 0),
	}
	table, err := NewSynthesizer(opts, logging.Discard()).Synthesize(set)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 1}, column(t, table, "AvgLast5HomeGoalsScored"))
	assert.Equal(t, []float64{5, 1}, column(t, table, "AvgHomeGoalsScored"))
}

func TestSynthesize_SameDateKeepsIngestionOrder(t *testing.T) {
	set := &match.RecordSet{NumericOrder: []string{"FTHG", "FTAG"}}
	set.Records = []match.Record{
		rec(0, day(3), "A", "B", 4, 0),
		rec(1, day(3), "A", "C", 0, 0),
	}
	table, err := NewSynthesizer(opts, logging.Discard()).Synthesize(set)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 2}, column(t, table, "AvgLast5HomeGoalsScored"))
}

func TestSynthesize_EmptyInput(t *testing.T) {
	_, err := NewSynthesizer(opts, logging.Discard()).Synthesize(&match.RecordSet{})
	assert.Error(t, err)
}
