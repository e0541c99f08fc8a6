// Package batch applies one prompt template to every row of a CSV table and
// collects the structured output of each row.
package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/germanamz/taskbot/pkg/extract"
)

// ErrorMarker fills every output field of a row that could not be processed.
const ErrorMarker = "ERROR"

// Row maps a column name to its value.
type Row map[string]string

// Table is a parsed CSV file. Row order is the file order.
type Table struct {
	Headers []string
	Rows    []Row
}

// ReadCSV parses r as CSV with a header line. Rows whose column count differs
// from the header are skipped with a warning naming the row number.
func ReadCSV(r io.Reader, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("batch: csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("batch: read csv header: %w", err)
	}

	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	seen := make(map[string]struct{}, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("batch: csv header: column %d has no name", i+1)
		}
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("batch: csv header: duplicate column %q", h)
		}
		seen[h] = struct{}{}
		headers[i] = h
	}

	t := &Table{Headers: headers}
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("batch: read csv row %d: %w", n, err)
		}

		if len(rec) != len(headers) {
			logger.Warn("batch: skipping row with wrong column count",
				"row", n,
				"columns", len(rec),
				"expected", len(headers),
			)
			continue
		}

		row := make(Row, len(headers))
		for i, h := range headers {
			row[h] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Head returns a table holding the header and at most the first n rows.
func (t *Table) Head(n int) *Table {
	n = min(max(n, 0), len(t.Rows))
	return &Table{Headers: t.Headers, Rows: t.Rows[:n]}
}

// WriteCSV writes the table with its headers followed by one column per
// output field. Output values are read from the same row maps.
func (t *Table) WriteCSV(w io.Writer, fields []extract.Field) error {
	cw := csv.NewWriter(w)

	headers := append(append([]string{}, t.Headers...), extract.Keys(fields)...)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("batch: write csv: %w", err)
	}

	rec := make([]string, len(headers))
	for _, row := range t.Rows {
		for i, h := range headers {
			rec[i] = row[h]
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("batch: write csv: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("batch: write csv: %w", err)
	}
	return nil
}

// String renders the table (without output fields) as CSV.
func (t *Table) String() string {
	var buf bytes.Buffer
	_ = t.WriteCSV(&buf, nil)
	return buf.String()
}
