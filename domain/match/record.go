package match

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultSeasonCutoff is the first month of a new season.
const DefaultSeasonCutoff = time.August

// Season is a two-year season tag such as "2024/2025".
type Season string

// SeasonOf maps a match date to its season. Matches played from the cutoff
// month onwards belong to year/year+1, earlier ones to year-1/year.
func SeasonOf(date time.Time, cutoff time.Month) Season {
	year := date.Year()
	if date.Month() >= cutoff {
		return Season(fmt.Sprintf("%d/%d", year, year+1))
	}
	return Season(fmt.Sprintf("%d/%d", year-1, year))
}

func (s Season) String() string { return string(s) }

// Record is one played match. It is immutable once ingested: the
// synthesizer reads records and never writes back into them.
type Record struct {
	Seq       int       `json:"seq"` // ingestion order, breaks same-date ties
	Date      time.Time `json:"date"`
	Season    Season    `json:"season"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeGoals float64   `json:"home_goals"`
	AwayGoals float64   `json:"away_goals"`
	Label     float64   `json:"label"` // 1 when total goals exceed the threshold

	// Stats holds the remaining numeric columns; NaN marks a missing value.
	Stats map[string]float64 `json:"stats"`
	// Categorical holds the remaining text columns; "" marks a missing value.
	Categorical map[string]string `json:"categorical"`
}

// TotalGoals returns home plus away goals
func (r Record) TotalGoals() float64 {
	return r.HomeGoals + r.AwayGoals
}

// RecordSet is the ingested form of one competition: the records plus the
// column order of the source table so downstream tables stay stable.
type RecordSet struct {
	Records          []Record
	NumericOrder     []string
	CategoricalOrder []string
}

// Len returns the number of records
func (rs *RecordSet) Len() int {
	return len(rs.Records)
}

// LabelColumn names the over-threshold label, e.g. "Over2.5"
func LabelColumn(threshold float64) string {
	return "Over" + strconv.FormatFloat(threshold, 'f', -1, 64)
}
