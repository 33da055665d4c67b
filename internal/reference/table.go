// Package reference reads the risk system's reference rows, one table per
// derivative type, from an Excel workbook or a directory of CSV files.
package reference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/termsheet-validation/backend/internal/keys"
	"github.com/termsheet-validation/backend/internal/record"
)

var (
	ErrTableNotFound   = errors.New("reference table not found")
	ErrNoTradeIDColumn = errors.New("reference table has no trade id column")
)

// Table is a loaded reference table. The first source row is the header.
type Table struct {
	Name   string
	header []string
	rows   [][]string
	idCol  int
}

func NewTable(name string, rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table %q is empty", ErrNoTradeIDColumn, name)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	idCol := tradeIDColumn(header)
	if idCol < 0 {
		return nil, fmt.Errorf("%w: table %q has columns %v", ErrNoTradeIDColumn, name, header)
	}

	return &Table{Name: name, header: header, rows: rows[1:], idCol: idCol}, nil
}

// tradeIDColumn prefers a column named exactly "tradeid" (any case), then
// the first column mentioning both "trade" and "id".
func tradeIDColumn(header []string) int {
	for i, h := range header {
		if keys.Normalize(h) == "tradeid" {
			return i
		}
	}
	for i, h := range header {
		n := keys.Normalize(h)
		if strings.Contains(n, "trade") && strings.Contains(n, "id") {
			return i
		}
	}
	return -1
}

// Columns returns the header labels.
func (t *Table) Columns() []string {
	return append([]string(nil), t.header...)
}

func (t *Table) Len() int { return len(t.rows) }

// Find returns the first row whose trimmed trade id equals tradeID, falling
// back to a case-insensitive match.
func (t *Table) Find(tradeID string) (record.Record, bool) {
	want := strings.TrimSpace(tradeID)
	if want == "" {
		return nil, false
	}

	for _, row := range t.rows {
		if t.cell(row, t.idCol) == want {
			return t.record(row), true
		}
	}
	for _, row := range t.rows {
		if strings.EqualFold(t.cell(row, t.idCol), want) {
			return t.record(row), true
		}
	}
	return nil, false
}

func (t *Table) cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// record keeps non-empty cells under their header label.
func (t *Table) record(row []string) record.Record {
	rec := make(record.Record, len(t.header))
	for i, label := range t.header {
		if label == "" {
			continue
		}
		if v := t.cell(row, i); v != "" {
			rec[label] = record.Text(v)
		}
	}
	return rec
}
