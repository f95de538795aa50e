// Package source decodes uploaded delinquency lists (CSV, XLSX, HTML, PDF) into header/value rows.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"taxlien/internal"
	"taxlien/internal/inference"
	"taxlien/internal/util"
)

var (
	// ErrMalformed means the content could not be split into rows at all.
	ErrMalformed   = errors.New("malformed table")
	ErrUnsupported = errors.New("unsupported file type")
)

type Table struct {
	Headers []string
	Rows    []internal.RawRow
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var readers = map[string]func([]byte) (Table, error){
	".csv":  readCSV,
	".txt":  readCSV,
	".xlsx": readXLSX,
	".html": readHTML,
	".htm":  readHTML,
	".pdf":  readPDF,
}

func Supported(filename string) bool {
	_, ok := readers[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Read picks a decoder from the file extension.
func Read(filename string, content []byte) (Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	read, ok := readers[ext]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return read(content)
}

func readCSV(content []byte) (Table, error) {
	return ReadCSV(bytes.NewReader(content))
}

// ReadCSV expects a header line followed by data lines. Short rows leave trailing columns absent.
func ReadCSV(r io.Reader) (Table, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, utf8BOM) {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	grid, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return buildTable(grid, 0)
}

// buildTable turns a grid into a table using grid[headerRow] as the header line.
func buildTable(grid [][]string, headerRow int) (Table, error) {
	for headerRow < len(grid) && blankRow(grid[headerRow]) {
		headerRow++
	}
	if headerRow >= len(grid) {
		return Table{}, fmt.Errorf("%w: no header row", ErrMalformed)
	}
	headers := uniqueHeaders(grid[headerRow])
	t := Table{Headers: headers, Rows: make([]internal.RawRow, 0, len(grid)-headerRow-1)}
	for _, line := range grid[headerRow+1:] {
		if blankRow(line) {
			continue
		}
		values := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(line) {
				values[h] = line[i]
			}
		}
		t.Rows = append(t.Rows, internal.RawRow{Headers: headers, Values: values})
	}
	return t, nil
}

func uniqueHeaders(raw []string) []string {
	seen := map[string]int{}
	out := make([]string, len(raw))
	for i, h := range raw {
		h = util.NormalizeSpaces(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = h
	}
	return out
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// headerScore counts cells that name a known column.
func headerScore(cells []string) int {
	n := 0
	for _, c := range cells {
		if _, ok := inference.MatchHeader(c); ok {
			n++
		}
	}
	return n
}

// findHeaderRow returns the first of the leading rows that names at least two known columns,
// or the first non-blank row when none does.
func findHeaderRow(grid [][]string, scan int) int {
	for i := 0; i < len(grid) && i < scan; i++ {
		if headerScore(grid[i]) >= 2 {
			return i
		}
	}
	for i, row := range grid {
		if !blankRow(row) {
			return i
		}
	}
	return 0
}
