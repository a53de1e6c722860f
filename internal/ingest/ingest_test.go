package ingest

import (
	"math"
	"testing"
	"time"

	"goalcast/domain/match"
	"goalcast/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(rows int) *match.Frame {
	f := match.NewFrame("E0_merged.csv", rows)
	f.Names = []string{"Div", "Date", "HomeTeam", "AwayTeam", "FTHG", "FTAG", "HS"}
	return f
}

func TestRecords_DerivesSeasonAndLabel(t *testing.T) {
	f := frame(3)
	f.Text["Div"] = []string{"E0", "E0", "E0"}
	f.Text["Date"] = []string{"31/07/2024", "01/08/2024", "2024-08-10"}
	f.Text["HomeTeam"] = []string{"Arsenal", "Chelsea", "Everton"}
	f.Text["AwayTeam"] = []string{"Fulham", "Leeds", "Spurs"}
	f.Numeric["FTHG"] = []float64{2, 1, 0}
	f.Numeric["FTAG"] = []float64{1, 1, 0}
	f.Numeric["HS"] = []float64{10, math.NaN(), 7}

	set, err := Records(f, Options{GoalThreshold: 2.5, SeasonCutoff: time.August})
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())

	assert.Equal(t, match.Season("2023/2024"), set.Records[0].Season)
	assert.Equal(t, match.Season("2024/2025"), set.Records[1].Season)
	assert.Equal(t, 1.0, set.Records[0].Label)
	assert.Equal(t, 0.0, set.Records[1].Label)
	assert.True(t, math.IsNaN(set.Records[1].Stats["HS"]))
	assert.Equal(t, []string{"FTHG", "FTAG", "HS"}, set.NumericOrder)
	assert.Equal(t, []string{"Div"}, set.CategoricalOrder)
	assert.Equal(t, 2, set.Records[2].Seq)
}

func TestRecords_SkipsEmptyRows(t *testing.T) {
	f := frame(2)
	f.Text["Div"] = []string{"E0", ""}
	f.Text["Date"] = []string{"10/08/24", ""}
	f.Text["HomeTeam"] = []string{"Arsenal", ""}
	f.Text["AwayTeam"] = []string{"Fulham", ""}
	f.Numeric["FTHG"] = []float64{3, math.NaN()}
	f.Numeric["FTAG"] = []float64{0, math.NaN()}
	f.Numeric["HS"] = []float64{12, math.NaN()}

	set, err := Records(f, Options{GoalThreshold: 2.5})
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, time.Date(2024, 8, 10, 0, 0, 0, 0, time.UTC), set.Records[0].Date)
}

func TestRecords_DataErrors(t *testing.T) {
	t.Run("missing column", func(t *testing.T) {
		f := match.NewFrame("x.csv", 1)
		f.Names = []string{"Date"}
		f.Text["Date"] = []string{"10/08/2024"}
		_, err := Records(f, Options{})
		require.Error(t, err)
		assert.Equal(t, errors.CodeDataError, errors.GetCode(err))
		assert.Contains(t, err.Error(), "FTHG")
	})

	t.Run("malformed date", func(t *testing.T) {
		f := frame(1)
		f.Text["Div"] = []string{"E0"}
		f.Text["Date"] = []string{"tomorrow"}
		f.Text["HomeTeam"] = []string{"A"}
		f.Text["AwayTeam"] = []string{"B"}
		f.Numeric["FTHG"] = []float64{1}
		f.Numeric["FTAG"] = []float64{1}
		f.Numeric["HS"] = []float64{1}
		_, err := Records(f, Options{})
		require.Error(t, err)
		assert.Equal(t, errors.CodeDataError, errors.GetCode(err))
		assert.Contains(t, err.Error(), "row 1")
	})

	t.Run("missing goals", func(t *testing.T) {
		f := frame(1)
		f.Text["Div"] = []string{"E0"}
		f.Text["Date"] = []string{"10/08/2024"}
		f.Text["HomeTeam"] = []string{"A"}
		f.Text["AwayTeam"] = []string{"B"}
		f.Numeric["FTHG"] = []float64{math.NaN()}
		f.Numeric["FTAG"] = []float64{1}
		f.Numeric["HS"] = []float64{1}
		_, err := Records(f, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "goal")
	})
}

func TestFeatureTable(t *testing.T) {
	f := match.NewFrame("E0_merged_preprocessed.csv", 2)
	f.Names = []string{"Date", "HomeTeam", "AwayTeam", "HS", "Over2.5"}
	f.Text["Date"] = []string{"2024-08-10", "2024-08-17"}
	f.Text["HomeTeam"] = []string{"A", "B"}
	f.Text["AwayTeam"] = []string{"B", "A"}
	f.Numeric["HS"] = []float64{10, 12}
	f.Numeric["Over2.5"] = []float64{1, 0}

	table, err := FeatureTable(f, "Over2.5")
	require.NoError(t, err)
	assert.Equal(t, 2, table.Rows())
	assert.Equal(t, "Over2.5", table.Label)
	assert.Equal(t, []string{"HomeTeam", "AwayTeam"}, table.CategoricalNames())
	assert.Equal(t, []string{"HS", "Over2.5"}, table.NumericNames())
}
