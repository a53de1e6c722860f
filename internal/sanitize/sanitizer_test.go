package sanitize

import (
	"math"
	"testing"
	"time"

	"goalcast/domain/match"
	"goalcast/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func table(t *testing.T, rows int) *match.Table {
	t.Helper()
	dates := make([]time.Time, rows)
	for i := range dates {
		dates[i] = time.Date(2024, 8, 1+i, 0, 0, 0, 0, time.UTC)
	}
	return match.NewTable(dates, "Over2.5")
}

func TestApply_ColumnsBeforeRows(t *testing.T) {
	tbl := table(t, 5)
	// Sparse has 3 nulls, above the threshold of 2: the whole column goes
	// and the rows it alone made incomplete survive.
	require.NoError(t, tbl.AddNumeric("Sparse", []float64{nan, nan, nan, 1, 1}))
	// Patchy has 1 null, within the threshold: kept, its null row dropped.
	require.NoError(t, tbl.AddNumeric("Patchy", []float64{1, 2, 3, nan, 5}))
	require.NoError(t, tbl.AddNumeric("Over2.5", []float64{1, 0, 1, 0, 1}))

	dense, report := NewSanitizer(2, logging.Discard()).Apply(tbl)

	assert.Equal(t, []string{"Sparse"}, report.DroppedColumns)
	assert.Equal(t, 1, report.DroppedRows)
	assert.Equal(t, 4, report.RemainingRows)
	assert.False(t, dense.HasColumn("Sparse"))

	patchy, ok := dense.Column("Patchy")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 5}, patchy)
	assert.Equal(t, 3, report.NullCounts["Sparse"])
}

func TestApply_ThresholdIsInclusive(t *testing.T) {
	tbl := table(t, 4)
	require.NoError(t, tbl.AddNumeric("AtLimit", []float64{nan, nan, 1, 1}))
	require.NoError(t, tbl.AddNumeric("Over2.5", []float64{1, 0, 1, 0}))

	dense, report := NewSanitizer(2, logging.Discard()).Apply(tbl)
	assert.Empty(t, report.DroppedColumns)
	assert.True(t, dense.HasColumn("AtLimit"))
	assert.Equal(t, 2, dense.Rows())
}

func TestApply_CategoricalBlanksAreNulls(t *testing.T) {
	tbl := table(t, 3)
	require.NoError(t, tbl.AddCategorical("Referee", []string{"M Oliver", "", "A Taylor"}))
	require.NoError(t, tbl.AddNumeric("Over2.5", []float64{1, 0, 1}))

	dense, _ := NewSanitizer(10, logging.Discard()).Apply(tbl)
	assert.Equal(t, 2, dense.Rows())
	ref, _ := dense.Text("Referee")
	assert.Equal(t, []string{"M Oliver", "A Taylor"}, ref)
}

func TestApply_LeavesInputUntouched(t *testing.T) {
	tbl := table(t, 2)
	require.NoError(t, tbl.AddNumeric("X", []float64{nan, 1}))
	require.NoError(t, tbl.AddNumeric("Over2.5", []float64{1, 0}))

	_, _ = NewSanitizer(0, logging.Discard()).Apply(tbl)
	assert.True(t, tbl.HasColumn("X"))
	assert.Equal(t, 2, tbl.Rows())
}
