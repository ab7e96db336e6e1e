package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrEmptyTable = errors.New("table has no header row")

// Table is a row-oriented spreadsheet with named columns. A failure to read
// or parse the source is fatal to the whole run; it is surfaced before any
// row is processed.
type Table struct {
	Headers []string
	Rows    [][]string
}

type Row struct {
	Identifier string
	Link       string
}

func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	default:
		return ReadXLSX(f)
	}
}

func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	return &Table{
		Headers: rows[0],
		Rows:    rows[1:],
	}, nil
}

// Pairs selects the identifier and URL columns by header name. Short rows
// yield blank cells; an unknown column name is fatal.
func (t *Table) Pairs(identColumn, linkColumn string) ([]Row, error) {
	identIdx, err := t.columnIndex(identColumn)
	if err != nil {
		return nil, err
	}
	linkIdx, err := t.columnIndex(linkColumn)
	if err != nil {
		return nil, err
	}

	pairs := make([]Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		pairs = append(pairs, Row{
			Identifier: cell(row, identIdx),
			Link:       cell(row, linkIdx),
		})
	}
	return pairs, nil
}

func (t *Table) columnIndex(name string) (int, error) {
	for i, header := range t.Headers {
		if strings.TrimSpace(header) == strings.TrimSpace(name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found in table headers", name)
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
