// Package sheet turns a people-roster spreadsheet export into a single
// knowledge chunk. The export arrives as a CSV grid; the first grid
// rows are decorative and skipped, the next row carries the column
// headers.
package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// ReadGrid reads a rectangular grid of string cells from CSV data.
// Rows may have differing widths; quoting is handled leniently.
func ReadGrid(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	grid, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read grid: %w", err)
	}
	return grid, nil
}

// ReadGridFile reads a grid from a CSV file on disk.
func ReadGridFile(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sheet file: %w", err)
	}
	defer file.Close()

	return ReadGrid(file)
}
