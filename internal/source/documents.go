package source

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"taxlien/internal/util"
)

// headerScan bounds how far into a sheet or document the header line is looked for; county
// exports often carry a title block above the table.
const headerScan = 5

func readXLSX(content []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		grid := make([][]string, len(rows))
		for i, row := range rows {
			grid[i] = normalizeCells(row)
		}
		if allBlank(grid) {
			continue
		}
		return buildTable(grid, findHeaderRow(grid, headerScan))
	}
	return Table{}, fmt.Errorf("%w: workbook has no rows", ErrMalformed)
}

// readHTML takes the first table with a header and at least one data row.
func readHTML(content []byte) (Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var grid [][]string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}
		rows.Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			grid = append(grid, cells)
		})
		return false
	})
	if len(grid) == 0 {
		return Table{}, fmt.Errorf("%w: no table with data rows", ErrMalformed)
	}
	return buildTable(grid, findHeaderRow(grid, headerScan))
}

// readPDF handles text PDFs where columns are separated by wide gaps.
// readPDF maps a panic inside the PDF library to ErrMalformed; attachments arrive unattended.
func readPDF(content []byte) (t Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = Table{}, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	return parsePDF(content)
}

func parsePDF(content []byte) (Table, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var grid [][]string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range util.SplitLines(text) {
			grid = append(grid, util.SplitWide(line))
		}
	}
	if len(grid) == 0 {
		return Table{}, fmt.Errorf("%w: no text in document", ErrMalformed)
	}
	header := findHeaderRow(grid, headerScan)
	t, err := buildTable(grid, header)
	if err != nil {
		return Table{}, err
	}
	// Repeated page headers are dropped.
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if !sameAsHeader(row.Values, t.Headers) {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
	return t, nil
}

func sameAsHeader(values map[string]string, headers []string) bool {
	for _, h := range headers {
		if values[h] != h {
			return false
		}
	}
	return true
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}

func allBlank(grid [][]string) bool {
	for _, row := range grid {
		if !blankRow(row) {
			return false
		}
	}
	return true
}
