// Package ingest turns source frames into immutable match records.
package ingest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"goalcast/domain/match"
	"goalcast/internal/errors"
)

// DateLayouts are tried in order when parsing the Date column. Day-first
// layouts come first because the source exports are European.
var DateLayouts = []string{
	"02/01/2006",
	"02/01/06",
	"2/1/2006",
	"2/1/06",
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// RequiredColumns must be present in every source table
var RequiredColumns = []string{
	match.ColDate,
	match.ColHomeTeam,
	match.ColAwayTeam,
	match.ColHomeGoal,
	match.ColAwayGoal,
}

// Options controls label and season derivation
type Options struct {
	GoalThreshold float64
	SeasonCutoff  time.Month
}

// ParseDate parses a match date with the accepted layouts
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Records converts a frame into records. Fully empty rows are skipped;
// any other row must carry a parseable date, both team names and both
// goal counts.
func Records(frame *match.Frame, opts Options) (*match.RecordSet, error) {
	if err := checkColumns(frame); err != nil {
		return nil, err
	}

	cutoff := opts.SeasonCutoff
	if cutoff == 0 {
		cutoff = match.DefaultSeasonCutoff
	}

	set := &match.RecordSet{}
	for _, name := range frame.Names {
		switch name {
		case match.ColDate, match.ColHomeTeam, match.ColAwayTeam:
			continue
		}
		if frame.IsNumeric(name) {
			set.NumericOrder = append(set.NumericOrder, name)
		} else {
			set.CategoricalOrder = append(set.CategoricalOrder, name)
		}
	}

	dates := frame.Text[match.ColDate]
	homes := frame.Text[match.ColHomeTeam]
	aways := frame.Text[match.ColAwayTeam]
	homeGoals := frame.Numeric[match.ColHomeGoal]
	awayGoals := frame.Numeric[match.ColAwayGoal]

	for i := 0; i < frame.Rows; i++ {
		if emptyRow(frame, i) {
			continue
		}
		// Row numbers in messages are 1-based data rows, after the header.
		row := i + 1

		date, err := ParseDate(dates[i])
		if err != nil {
			return nil, errors.DataError(fmt.Sprintf("%s row %d: %v", frame.Source, row, err))
		}
		home, away := strings.TrimSpace(homes[i]), strings.TrimSpace(aways[i])
		if home == "" || away == "" {
			return nil, errors.DataError(fmt.Sprintf("%s row %d: missing team name", frame.Source, row))
		}
		if math.IsNaN(homeGoals[i]) || math.IsNaN(awayGoals[i]) {
			return nil, errors.DataError(fmt.Sprintf("%s row %d: missing goal count", frame.Source, row))
		}

		rec := match.Record{
			Seq:         len(set.Records),
			Date:        date,
			Season:      match.SeasonOf(date, cutoff),
			HomeTeam:    home,
			AwayTeam:    away,
			HomeGoals:   homeGoals[i],
			AwayGoals:   awayGoals[i],
			Stats:       make(map[string]float64, len(set.NumericOrder)),
			Categorical: make(map[string]string, len(set.CategoricalOrder)),
		}
		if rec.TotalGoals() > opts.GoalThreshold {
			rec.Label = 1
		}
		for _, name := range set.NumericOrder {
			rec.Stats[name] = frame.Numeric[name][i]
		}
		for _, name := range set.CategoricalOrder {
			rec.Categorical[name] = frame.Text[name][i]
		}
		set.Records = append(set.Records, rec)
	}

	if len(set.Records) == 0 {
		return nil, errors.DataError(fmt.Sprintf("%s has no match rows", frame.Source))
	}
	return set, nil
}

// FeatureTable rebuilds a feature table from a written final table, for
// inference. label may be empty when the table carries none.
func FeatureTable(frame *match.Frame, label string) (*match.Table, error) {
	raw, ok := frame.Text[match.ColDate]
	if !ok {
		return nil, errors.DataError(fmt.Sprintf("%s: column %s is missing or not text", frame.Source, match.ColDate))
	}
	dates := make([]time.Time, frame.Rows)
	for i, s := range raw {
		d, err := ParseDate(s)
		if err != nil {
			return nil, errors.DataError(fmt.Sprintf("%s row %d: %v", frame.Source, i+1, err))
		}
		dates[i] = d
	}

	table := match.NewTable(dates, "")
	if label != "" && frame.IsNumeric(label) {
		table.Label = label
	}
	for _, name := range frame.Names {
		if name == match.ColDate {
			continue
		}
		var err error
		if frame.IsNumeric(name) {
			err = table.AddNumeric(name, frame.Numeric[name])
		} else {
			err = table.AddCategorical(name, frame.Text[name])
		}
		if err != nil {
			return nil, errors.DataError(err.Error())
		}
	}
	return table, nil
}

func checkColumns(frame *match.Frame) error {
	var missing []string
	for _, name := range RequiredColumns {
		if !frame.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.DataError(fmt.Sprintf("%s is missing required columns: %s", frame.Source, strings.Join(missing, ", ")))
	}

	for _, name := range []string{match.ColDate, match.ColHomeTeam, match.ColAwayTeam} {
		if frame.IsNumeric(name) {
			return errors.DataError(fmt.Sprintf("%s: column %s must be text", frame.Source, name))
		}
	}
	for _, name := range []string{match.ColHomeGoal, match.ColAwayGoal} {
		if !frame.IsNumeric(name) {
			return errors.DataError(fmt.Sprintf("%s: column %s must be numeric", frame.Source, name))
		}
	}
	return nil
}

func emptyRow(frame *match.Frame, i int) bool {
	for _, values := range frame.Text {
		if strings.TrimSpace(values[i]) != "" {
			return false
		}
	}
	for _, values := range frame.Numeric {
		if !math.IsNaN(values[i]) {
			return false
		}
	}
	return true
}
