package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/match"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Cells treated as missing in addition to blanks
var nanValues = []string{"NA", "NaN", "N/A", "<nil>"}

// Reader loads CSV and XLSX match tables. Column types are inferred by
// gota: integer, float and bool columns become numeric, everything else
// stays text.
type Reader struct {
	log   *logrus.Entry
	sheet string
}

// NewReader creates a reader. An empty sheet name selects the first sheet
// of a workbook.
func NewReader(log *logrus.Entry, sheet string) *Reader {
	return &Reader{log: logging.Component(log, "tabular"), sheet: sheet}
}

// Read loads the table at path
func (r *Reader) Read(ctx context.Context, path string) (*match.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(errors.DataError(err.Error()), "input table %s", path)
	}

	start := time.Now()
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = r.readCSV(path)
	case ".xlsx":
		rows, err = r.readExcel(path)
	default:
		return nil, errors.DataError(fmt.Sprintf("unsupported file type: %s", path))
	}
	if err != nil {
		return nil, err
	}

	frame, err := toFrame(path, rows)
	if err != nil {
		return nil, err
	}
	frame.Digest = digest(rows).String()
	r.log.WithFields(logrus.Fields{
		"path":    path,
		"rows":    frame.Rows,
		"columns": len(frame.Names),
		"elapsed": time.Since(start).String(),
	}).Debug("[Reader] table loaded")
	return frame, nil
}

func (r *Reader) readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.DataError(fmt.Sprintf("failed to open CSV file: %v", err))
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV reads raw CSV records. Ragged rows are allowed: football-data
// exports often carry trailing separators on some lines.
func ReadCSV(in io.Reader) ([][]string, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.DataError(fmt.Sprintf("failed to read CSV file: %v", err))
	}
	return rows, nil
}

func (r *Reader) readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.DataError(fmt.Sprintf("failed to open Excel file: %v", err))
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.DataError("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.DataError(fmt.Sprintf("failed to read sheet %s: %v", sheet, err))
	}
	return rows, nil
}

// toFrame normalises raw rows (trimmed header, rows padded or cut to the
// header width) and lets gota infer a type per column.
func toFrame(source string, rows [][]string) (*match.Frame, error) {
	if len(rows) < 2 {
		return nil, errors.DataError(fmt.Sprintf("%s must have a header row and at least one data row", source))
	}

	header := make([]string, 0, len(rows[0]))
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header = append(header, name)
	}
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return nil, errors.DataError(fmt.Sprintf("%s has an empty header", source))
	}
	for i, name := range header {
		if name == "" {
			header[i] = fmt.Sprintf("Unnamed_%d", i)
		}
	}

	records := make([][]string, 0, len(rows))
	records = append(records, header)
	for _, row := range rows[1:] {
		cells := make([]string, len(header))
		for j := range cells {
			if j < len(row) {
				cells[j] = normalizeCell(row[j])
			}
		}
		records = append(records, cells)
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
	)
	if df.Err != nil {
		return nil, errors.DataError(fmt.Sprintf("failed to parse %s: %v", source, df.Err))
	}

	frame := match.NewFrame(source, df.Nrow())
	frame.Names = df.Names()
	for _, name := range frame.Names {
		col := df.Col(name)
		switch col.Type() {
		case series.Int, series.Float, series.Bool:
			frame.Numeric[name] = col.Float()
		default:
			frame.Text[name] = textValues(col)
		}
	}
	return frame, nil
}

// normalizeCell trims a cell and maps missing markers to "", which gota
// skips during type detection.
func normalizeCell(cell string) string {
	cell = strings.TrimSpace(cell)
	for _, na := range nanValues {
		if cell == na {
			return ""
		}
	}
	return cell
}

// textValues returns column cells with gota's NA marker mapped back to ""
func textValues(col series.Series) []string {
	out := col.Records()
	for i := range out {
		if col.Elem(i).IsNA() {
			out[i] = ""
		}
	}
	return out
}

// digest hashes cells with unit and record separators so that cell
// boundaries are part of the content.
func digest(rows [][]string) core.Hash {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\x1f"))
		b.WriteByte('\x1e')
	}
	return core.NewHash([]byte(b.String()))
}
