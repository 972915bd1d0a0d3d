package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is a rendered-ready tabular report. Rows hold values in header order.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  string
}

// CSVExporter renders tables into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// ContentType reports the MIME type for CSV output.
func (e *CSVExporter) ContentType() string { return "text/csv" }

// Extension returns the file suffix.
func (e *CSVExporter) Extension() string { return "csv" }

// Render produces CSV encoded bytes. Title and footer are not part of CSV output.
func (e *CSVExporter) Render(table Table) ([]byte, error) {
	if len(table.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(table.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range table.Rows {
		if len(row) != len(table.Headers) {
			return nil, fmt.Errorf("csv row %d has %d values, want %d", i, len(row), len(table.Headers))
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
