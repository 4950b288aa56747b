package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// rowReader yields data rows keyed by the labels of the first row.
type rowReader interface {
	Next() (RawRow, error)
	Close() error
}

func openRows(path string) (rowReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case extCSV:
		return newCSVRows(path)
	case extXLSX:
		return newXLSXRows(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

type csvRows struct {
	f      *os.File
	r      *csv.Reader
	header []string
}

func newCSVRows(path string) (*csvRows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows := &csvRows{f: f, r: r}
	header, err := r.Read()
	if err == io.EOF {
		return rows, nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	rows.header = labels(header)
	return rows, nil
}

func (c *csvRows) Next() (RawRow, error) {
	if c.header == nil {
		return nil, io.EOF
	}
	for {
		rec, err := c.r.Read()
		if err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		return zip(c.header, rec), nil
	}
}

func (c *csvRows) Close() error {
	return c.f.Close()
}

// xlsxRows iterates the first worksheet. Cells are read raw so that date
// cells arrive as serial numbers rather than locale formatted text.
type xlsxRows struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
}

var rawCells = excelize.Options{RawCellValue: true}

func newXLSXRows(path string) (*xlsxRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}

	x := &xlsxRows{f: f}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return x, nil
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("rows of %s: %w", filepath.Base(path), err)
	}
	x.rows = rows

	for rows.Next() {
		cols, err := rows.Columns(rawCells)
		if err != nil {
			x.Close()
			return nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
		}
		if blank(cols) {
			continue
		}
		x.header = labels(cols)
		break
	}
	return x, nil
}

func (x *xlsxRows) Next() (RawRow, error) {
	if x.header == nil {
		return nil, io.EOF
	}
	for x.rows.Next() {
		cols, err := x.rows.Columns(rawCells)
		if err != nil {
			return nil, err
		}
		if blank(cols) {
			continue
		}
		return zip(x.header, cols), nil
	}
	if err := x.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (x *xlsxRows) Close() error {
	if x.rows != nil {
		x.rows.Close()
	}
	return x.f.Close()
}

func labels(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func zip(header, cells []string) RawRow {
	row := make(RawRow, len(header))
	for i, h := range header {
		if h == "" || i >= len(cells) {
			continue
		}
		row[h] = cells[i]
	}
	return row
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
