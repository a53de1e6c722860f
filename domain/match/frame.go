package match

// Frame is a source table as read from disk, before ingestion: every
// column in file order, typed by inference. Numeric columns use NaN for
// blanks, text columns use "".
type Frame struct {
	Source  string
	Names   []string
	Numeric map[string][]float64
	Text    map[string][]string
	Rows    int
	// Digest is a content hash of the raw cells, for run fingerprints.
	Digest string
}

// NewFrame creates an empty frame for the named source
func NewFrame(source string, rows int) *Frame {
	return &Frame{
		Source:  source,
		Numeric: make(map[string][]float64),
		Text:    make(map[string][]string),
		Rows:    rows,
	}
}

// IsNumeric reports whether the named column was inferred as numeric
func (f *Frame) IsNumeric(name string) bool {
	_, ok := f.Numeric[name]
	return ok
}

// Has reports whether the frame carries the named column
func (f *Frame) Has(name string) bool {
	if _, ok := f.Numeric[name]; ok {
		return true
	}
	_, ok := f.Text[name]
	return ok
}
