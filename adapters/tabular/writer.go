package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"goalcast/domain/core"
	"goalcast/domain/match"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/sirupsen/logrus"
)

// DateLayout is the date format of written tables
const DateLayout = "2006-01-02"

// Writer writes final feature tables as CSV: date, categorical columns,
// numeric columns (the label last), in table order.
type Writer struct {
	log *logrus.Entry
}

// NewWriter creates a table writer
func NewWriter(log *logrus.Entry) *Writer {
	return &Writer{log: logging.Component(log, "tabular")}
}

// ProcessedPath returns the output path of a competition's final table
func ProcessedPath(dir string, competition core.CompetitionID) string {
	return filepath.Join(dir, competition.ProcessedFile())
}

// Write stores the table at path, replacing any previous file atomically
func (w *Writer) Write(ctx context.Context, path string, table *match.Table) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled(err)
	}

	df := ToDataFrame(table)
	if df.Err != nil {
		return errors.PersistenceError("failed to build output table", df.Err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.PersistenceError("failed to create output directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".table-*.tmp")
	if err != nil {
		return errors.PersistenceError("failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if err := df.WriteCSV(tmp); err != nil {
		tmp.Close()
		return errors.PersistenceError("failed to write table", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.PersistenceError("failed to flush table", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.PersistenceError("failed to move table into place", err)
	}

	w.log.WithFields(logrus.Fields{"path": path, "rows": table.Rows()}).Info("[Writer] feature table written")
	return nil
}

// ToDataFrame converts a table into a gota frame. Numbers are rendered
// with the shortest exact representation.
func ToDataFrame(table *match.Table) dataframe.DataFrame {
	cols := make([]series.Series, 0, 1+len(table.Categorical)+len(table.Numeric))

	dates := make([]string, table.Rows())
	for i, d := range table.Dates {
		dates[i] = d.Format(DateLayout)
	}
	cols = append(cols, series.New(dates, series.String, match.ColDate))

	for _, c := range table.Categorical {
		cols = append(cols, series.New(c.Values, series.String, c.Name))
	}
	for _, c := range table.Numeric {
		values := make([]string, len(c.Values))
		for i, v := range c.Values {
			values[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		cols = append(cols, series.New(values, series.String, c.Name))
	}
	return dataframe.New(cols...)
}
