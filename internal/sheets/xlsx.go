package sheets

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/mixwizard-cli/internal/transform"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm")
}

func (xlsxReader) Read(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	wb := &Workbook{FileType: "xlsx"}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, normalize(name, rows))
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}
	return wb, nil
}

// WriteXLSX saves sheet as a single-sheet workbook at path. Cells that parse
// as numbers are written as numbers.
func WriteXLSX(path string, sheet *Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	name := sheet.Name
	if name == "" {
		name = ConcatenatedSheet
	}
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(sheet.Columns))
	for i, c := range sheet.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for r, row := range sheet.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func cellValue(v string) any {
	if f, ok := transform.ParseNumber(v); ok {
		return f
	}
	return v
}
