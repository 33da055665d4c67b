package reference

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Source returns the raw rows of a named table, header first.
type Source interface {
	Rows(ctx context.Context, table string) ([][]string, error)
}

// WorkbookSource reads tables from the sheets of one .xlsx file. Sheet names
// match case-insensitively.
type WorkbookSource struct {
	Path string
}

func (s *WorkbookSource) Rows(_ context.Context, table string) ([][]string, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		if !strings.EqualFold(sheet, table) {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%w: no sheet %q in %s", ErrTableNotFound, table, s.Path)
}

// CSVSource reads each table from <Dir>/<table>.csv.
type CSVSource struct {
	Dir string
}

func (s *CSVSource) Rows(_ context.Context, table string) ([][]string, error) {
	path := filepath.Join(s.Dir, table+".csv")
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open reference table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}
