package reference

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/termsheet-validation/backend/internal/validation"
)

type listSheet struct {
	name   string
	header []any
	rows   [][]any
}

func column(values ...any) [][]any {
	rows := make([][]any, len(values))
	for i, v := range values {
		rows[i] = []any{v}
	}
	return rows
}

// riskParameterSheets are the limits and allow-lists the risk desk keeps
// alongside the reference swaps.
var riskParameterSheets = []listSheet{
	{
		name:   "Parameters",
		header: []any{"parameter", "value"},
		rows: [][]any{
			{"min_notional", 100000},
			{"max_notional", 1000000000},
			{"min_fixed_rate", 0},
			{"max_fixed_rate", 10},
		},
	},
	{name: "Tenors", header: []any{"common_tenors"}, rows: column(1, 2, 3, 5, 7, 10, 15, 20, 30)},
	{name: "Indices", header: []any{"allowed_indices"}, rows: column("SOFR", "EURIBOR", "€STR", "SONIA", "LIBOR", "EONIA")},
	{name: "Frequencies", header: []any{"allowed_frequencies"}, rows: column("Monthly", "Quarterly", "Semi-annual", "Annual")},
	{name: "DayCounts", header: []any{"allowed_day_counts"}, rows: column("30/360", "ACT/365", "ACT/360", "ACT/ACT")},
	{
		name:   "Counterparties",
		header: []any{"approved_counterparties"},
		rows: column("Bank of America", "JPMorgan Chase", "Goldman Sachs", "Morgan Stanley", "Citigroup",
			"Wells Fargo", "Deutsche Bank", "HSBC", "Barclays", "BNP Paribas"),
	},
}

// WriteTemplate writes a blank risk workbook: one sheet per validated swap
// type, named from tables and headed by tradeId plus the type's economic
// fields, followed by the risk parameter sheets. Types without a configured
// table use their type name.
func WriteTemplate(w io.Writer, tables map[string]string) error {
	byType := make(map[string]string, len(tables))
	for typ, table := range tables {
		byType[typeKey(typ)] = table
	}

	var sheets []listSheet
	ruleSets := validation.RuleSets()
	sort.Slice(ruleSets, func(i, j int) bool { return ruleSets[i].Type < ruleSets[j].Type })
	for _, rs := range ruleSets {
		name, ok := byType[typeKey(rs.Type)]
		if !ok {
			name = rs.Type
		}
		header := []any{"tradeId"}
		for _, field := range rs.EconomicFields {
			header = append(header, field)
		}
		sheets = append(sheets, listSheet{name: name, header: header})
	}
	sheets = append(sheets, riskParameterSheets...)

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", sheet.name, err)
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.name, err)
		}
		if err := writeRows(f, sheet); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet listSheet) error {
	all := append([][]any{sheet.header}, sheet.rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.name, cell, &row); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", sheet.name, err)
		}
	}
	return nil
}
