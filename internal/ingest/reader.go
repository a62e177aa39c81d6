// Package ingest reads raw ERP order rows from CSV exports.
//
// The reader normalizes headers (trimmed, lowercased, spaces replaced with
// underscores) so exports with headers like " Order ID " still map onto the
// canonical field names. Rows are yielded lazily in file order; the sequence
// is finite and not restartable without reopening the file.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reader streams raw rows from a CSV file, keyed by normalized header name.
type Reader struct {
	file    *os.File
	csv     *csv.Reader
	headers []string
}

// Open opens the CSV at path and consumes the header row.
// The caller must call Close when done.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	cr := csv.NewReader(f)
	// ERP exports are frequently ragged; missing trailing cells read as empty.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		_ = f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("CSV file %s has no header row", path)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = NormalizeHeader(h)
	}

	return &Reader{file: f, csv: cr, headers: headers}, nil
}

// NormalizeHeader maps a raw CSV header onto its canonical field name.
func NormalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// Headers returns the normalized header names in column order.
func (r *Reader) Headers() []string {
	return r.headers
}

// Next returns the next row keyed by normalized header name.
// Returns io.EOF after the last row.
func (r *Reader) Next() (map[string]string, error) {
	rec, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV row: %w", err)
	}

	row := make(map[string]string, len(r.headers))
	for i, name := range r.headers {
		if i < len(rec) {
			row[name] = rec[i]
		} else {
			row[name] = ""
		}
	}
	return row, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
