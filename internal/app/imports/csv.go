package imports

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// record is one data row addressed by header name
type record struct {
	row    int
	fields []string
	index  map[string]int
}

// get returns the trimmed value of column name, or "" when the column is absent
func (r record) get(name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r record) has(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r record) blank() bool {
	for _, f := range r.fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// table streams data rows of a CSV file after its header has been checked
type table struct {
	reader *csv.Reader
	index  map[string]int
	line   int
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}

// openTable reads the header row and verifies the required columns
func openTable(r io.Reader, required []string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errEmptyFile
	}
	if err != nil {
		return nil, &StructuralError{Message: "Unable to parse CSV header: " + err.Error()}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := index[name]; !dup && name != "" {
			index[name] = i
		}
	}
	if len(index) == 0 {
		return nil, errEmptyFile
	}

	var missing []string
	for _, name := range required {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, missingHeaders(missing)
	}

	line, _ := reader.FieldPos(0)
	return &table{reader: reader, index: index, line: line}, nil
}

// each calls fn for every non-blank data row. Rows are numbered by their line
// in the file, so skipped blank lines still count and the header is row 1. A
// row the CSV reader cannot parse is reported through fn with a parse error.
func (t *table) each(fn func(rec record, parseErr error)) {
	for {
		fields, err := t.reader.Read()
		if errors.Is(err, io.EOF) {
			return
		}

		var parseErr *csv.ParseError
		if err != nil {
			if !errors.As(err, &parseErr) {
				fn(record{row: t.line + 1, index: t.index}, err)
				return
			}
			t.line = parseErr.StartLine
			fn(record{row: parseErr.StartLine, index: t.index}, err)
			continue
		}

		t.line, _ = t.reader.FieldPos(0)
		rec := record{row: t.line, fields: fields, index: t.index}
		if rec.blank() {
			continue
		}
		fn(rec, nil)
	}
}
