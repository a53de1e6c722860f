package match

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Column names the pipeline relies on.
const (
	ColDate     = "Date"
	ColSeason   = "Season"
	ColHomeTeam = "HomeTeam"
	ColAwayTeam = "AwayTeam"
	ColHomeGoal = "FTHG"
	ColAwayGoal = "FTAG"
)

// NumericColumn is a named float column; NaN marks a null.
type NumericColumn struct {
	Name   string
	Values []float64
}

// CategoricalColumn is a named text column; "" marks a null.
type CategoricalColumn struct {
	Name   string
	Values []string
}

// Table is the feature table of one competition. Column order is
// significant and preserved by every operation.
type Table struct {
	Dates       []time.Time
	Categorical []CategoricalColumn
	Numeric     []NumericColumn
	Label       string
}

// NewTable creates an empty table with the given row dates
func NewTable(dates []time.Time, label string) *Table {
	return &Table{Dates: dates, Label: label}
}

// Rows returns the number of rows
func (t *Table) Rows() int {
	return len(t.Dates)
}

// NumericNames returns numeric column names in order
func (t *Table) NumericNames() []string {
	names := make([]string, len(t.Numeric))
	for i, c := range t.Numeric {
		names[i] = c.Name
	}
	return names
}

// CategoricalNames returns categorical column names in order
func (t *Table) CategoricalNames() []string {
	names := make([]string, len(t.Categorical))
	for i, c := range t.Categorical {
		names[i] = c.Name
	}
	return names
}

// Column returns a numeric column by name
func (t *Table) Column(name string) ([]float64, bool) {
	for _, c := range t.Numeric {
		if c.Name == name {
			return c.Values, true
		}
	}
	return nil, false
}

// Text returns a categorical column by name
func (t *Table) Text(name string) ([]string, bool) {
	for _, c := range t.Categorical {
		if c.Name == name {
			return c.Values, true
		}
	}
	return nil, false
}

// HasColumn reports whether a numeric or categorical column exists
func (t *Table) HasColumn(name string) bool {
	if _, ok := t.Column(name); ok {
		return true
	}
	_, ok := t.Text(name)
	return ok
}

// AddNumeric appends a numeric column
func (t *Table) AddNumeric(name string, values []float64) error {
	if len(values) != t.Rows() {
		return fmt.Errorf("column %s has %d values, table has %d rows", name, len(values), t.Rows())
	}
	if t.HasColumn(name) {
		return fmt.Errorf("column %s already exists", name)
	}
	t.Numeric = append(t.Numeric, NumericColumn{Name: name, Values: values})
	return nil
}

// AddCategorical appends a categorical column
func (t *Table) AddCategorical(name string, values []string) error {
	if len(values) != t.Rows() {
		return fmt.Errorf("column %s has %d values, table has %d rows", name, len(values), t.Rows())
	}
	if t.HasColumn(name) {
		return fmt.Errorf("column %s already exists", name)
	}
	t.Categorical = append(t.Categorical, CategoricalColumn{Name: name, Values: values})
	return nil
}

// DropColumns returns a copy of the table without the named columns.
// Unknown names are ignored. The label column cannot be dropped.
func (t *Table) DropColumns(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		if n != t.Label {
			drop[n] = true
		}
	}

	out := &Table{Dates: t.Dates, Label: t.Label}
	for _, c := range t.Categorical {
		if !drop[c.Name] {
			out.Categorical = append(out.Categorical, c)
		}
	}
	for _, c := range t.Numeric {
		if !drop[c.Name] {
			out.Numeric = append(out.Numeric, c)
		}
	}
	return out
}

// Select returns a copy keeping all categorical columns, the named numeric
// columns in the given order, and the label.
func (t *Table) Select(numeric []string) (*Table, error) {
	out := &Table{Dates: t.Dates, Label: t.Label, Categorical: t.Categorical}
	for _, name := range numeric {
		if name == t.Label {
			continue
		}
		values, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %s", name)
		}
		out.Numeric = append(out.Numeric, NumericColumn{Name: name, Values: values})
	}
	if t.Label != "" {
		label, ok := t.Column(t.Label)
		if !ok {
			return nil, fmt.Errorf("label column %s missing", t.Label)
		}
		out.Numeric = append(out.Numeric, NumericColumn{Name: t.Label, Values: label})
	}
	return out, nil
}

// FilterRows returns a deep copy containing only rows where keep[i] is true
func (t *Table) FilterRows(keep []bool) *Table {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}

	out := &Table{Dates: make([]time.Time, 0, n), Label: t.Label}
	for i, k := range keep {
		if k {
			out.Dates = append(out.Dates, t.Dates[i])
		}
	}
	for _, c := range t.Categorical {
		values := make([]string, 0, n)
		for i, k := range keep {
			if k {
				values = append(values, c.Values[i])
			}
		}
		out.Categorical = append(out.Categorical, CategoricalColumn{Name: c.Name, Values: values})
	}
	for _, c := range t.Numeric {
		values := make([]float64, 0, n)
		for i, k := range keep {
			if k {
				values = append(values, c.Values[i])
			}
		}
		out.Numeric = append(out.Numeric, NumericColumn{Name: c.Name, Values: values})
	}
	return out
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	keep := make([]bool, t.Rows())
	for i := range keep {
		keep[i] = true
	}
	return t.FilterRows(keep)
}

// LabelVector returns the label column
func (t *Table) LabelVector() ([]float64, error) {
	if t.Label == "" {
		return nil, fmt.Errorf("table has no label column")
	}
	y, ok := t.Column(t.Label)
	if !ok {
		return nil, fmt.Errorf("label column %s missing", t.Label)
	}
	out := make([]float64, len(y))
	copy(out, y)
	return out, nil
}

// Matrix builds a rows x len(names) dense matrix from numeric columns.
// It fails on nulls: the caller must sanitize first.
func (t *Table) Matrix(names []string) (*mat.Dense, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no columns requested")
	}
	rows := t.Rows()
	if rows == 0 {
		return nil, fmt.Errorf("table is empty")
	}
	m := mat.NewDense(rows, len(names), nil)
	for j, name := range names {
		values, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %s", name)
		}
		for i, v := range values {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("column %s has a null at row %d", name, i)
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}

// NullCount counts nulls in the named column
func (t *Table) NullCount(name string) int {
	if values, ok := t.Column(name); ok {
		n := 0
		for _, v := range values {
			if math.IsNaN(v) {
				n++
			}
		}
		return n
	}
	if values, ok := t.Text(name); ok {
		n := 0
		for _, v := range values {
			if v == "" {
				n++
			}
		}
		return n
	}
	return 0
}
