// Package dataset provides tabular access to CSV files and the deterministic
// progressive sampling used by rule discovery.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Table is one loaded dataset: a header row plus data rows, all as strings.
type Table struct {
	Path    string
	Headers []string
	Rows    [][]string
}

// Load reads the CSV file at path into memory. The first record is the header.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", path, ErrEmptyDataset)
	}

	headers := records[0]
	rows := records[1:]

	// Pad ragged rows so column access never goes out of range.
	for i, row := range rows {
		for len(row) < len(headers) {
			row = append(row, "")
		}

		rows[i] = row[:len(headers)]
	}

	return &Table{Path: path, Headers: headers, Rows: rows}, nil
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, header := range t.Headers {
		if strings.EqualFold(strings.TrimSpace(header), strings.TrimSpace(name)) {
			return i
		}
	}

	return -1
}

// Column returns the values of the column at the given index, row order preserved.
func (t *Table) Column(index int) []string {
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[index]
	}

	return values
}

// Save writes the table back to a CSV file at path.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", path, err)
	}

	writer := csv.NewWriter(f)

	if err = writer.Write(t.Headers); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to write header: %w", err)
	}

	if err = writer.WriteAll(t.Rows); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to write rows: %w", err)
	}

	writer.Flush()

	if err = writer.Error(); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to flush dataset %s: %w", path, err)
	}

	return f.Close()
}
