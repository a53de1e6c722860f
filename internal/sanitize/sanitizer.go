// Package sanitize removes sparse columns and incomplete rows. Nulls are
// never imputed.
package sanitize

import (
	"math"

	"goalcast/domain/match"
	"goalcast/internal/logging"

	"github.com/sirupsen/logrus"
)

// Report describes what a sanitizer pass removed
type Report struct {
	NullCounts     map[string]int `json:"null_counts"`
	DroppedColumns []string       `json:"dropped_columns"`
	DroppedRows    int            `json:"dropped_rows"`
	RemainingRows  int            `json:"remaining_rows"`
}

// Sanitizer drops every column whose null count exceeds Threshold, then
// every remaining row that still holds a null. Columns go first so one
// sparse column cannot take whole rows with it.
type Sanitizer struct {
	Threshold int
	log       *logrus.Entry
}

// NewSanitizer creates a sanitizer
func NewSanitizer(threshold int, log *logrus.Entry) *Sanitizer {
	return &Sanitizer{Threshold: threshold, log: logging.Component(log, "sanitizer")}
}

// Apply returns a dense copy of the table
func (s *Sanitizer) Apply(table *match.Table) (*match.Table, Report) {
	report := Report{NullCounts: make(map[string]int)}

	var drop []string
	for _, name := range append(table.CategoricalNames(), table.NumericNames()...) {
		n := table.NullCount(name)
		if n == 0 {
			continue
		}
		report.NullCounts[name] = n
		// The label is never dropped as a column; its null rows go below.
		if n > s.Threshold && name != table.Label {
			drop = append(drop, name)
		}
	}
	report.DroppedColumns = drop
	narrowed := table.DropColumns(drop...)

	keep := make([]bool, narrowed.Rows())
	for i := range keep {
		keep[i] = true
	}
	for _, c := range narrowed.Categorical {
		for i, v := range c.Values {
			if v == "" {
				keep[i] = false
			}
		}
	}
	for _, c := range narrowed.Numeric {
		for i, v := range c.Values {
			if math.IsNaN(v) {
				keep[i] = false
			}
		}
	}

	dense := narrowed.FilterRows(keep)
	report.DroppedRows = table.Rows() - dense.Rows()
	report.RemainingRows = dense.Rows()

	s.log.WithFields(logrus.Fields{
		"dropped_columns": len(report.DroppedColumns),
		"dropped_rows":    report.DroppedRows,
		"remaining_rows":  report.RemainingRows,
	}).Info("[Sanitizer] missing values handled")
	if len(drop) > 0 {
		s.log.WithField("columns", drop).Debug("[Sanitizer] columns over threshold")
	}
	return dense, report
}
