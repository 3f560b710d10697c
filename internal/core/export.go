package core

// export.go writes records to a single-sheet .xlsx workbook. The derived
// isActive flag is not exported; every other canonical field is written as
// text so document numbers and codes keep their leading zeros.

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Export defaults.
const (
	DefaultExportStem  = "revendedores_filtrados"
	DefaultExportSheet = "Revendedores"
)

// ExportFileName returns "<stem>_<YYYY-MM-DD>.xlsx" for the given day.
func ExportFileName(stem string, day time.Time) string {
	stem = strings.TrimSpace(stem)
	if stem == "" {
		stem = DefaultExportStem
	}
	return fmt.Sprintf("%s_%s.xlsx", stem, day.Format(time.DateOnly))
}

// WriteXLSX writes records to w as a workbook with one sheet named sheet.
func WriteXLSX(w io.Writer, records []Reseller, sheet string) error {
	if sheet == "" {
		sheet = DefaultExportSheet
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(fieldSpecs))
	for i, spec := range fieldSpecs {
		header[i] = spec.ExportLabel

		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, spec.ExportWidth); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		row := make([]interface{}, len(fieldSpecs))
		for j, spec := range fieldSpecs {
			row[j] = r.Value(spec.Name)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
