// Package sink stores aggregated rows in .xlsx workbooks.
package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Workbook is a TabularSink over excelize. It holds no state between calls;
// callers serialize writes to the same file.
type Workbook struct{}

func New() *Workbook {
	return &Workbook{}
}

// Sheets lists the sheets of the workbook at path. A missing file returns the
// os.Stat error, which wraps fs.ErrNotExist.
func (w *Workbook) Sheets(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// Create writes a new workbook with one sheet holding header and row.
func (w *Workbook) Create(path, sheet string, header []string, row []interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet %q: %w", sheet, err)
	}
	if err := writeRow(f, sheet, 1, headerRow(header)); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 2, row); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create workbook directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// AddSheet adds sheet with header and row to an existing workbook.
func (w *Workbook) AddSheet(path, sheet string, header []string, row []interface{}) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add sheet %q: %w", sheet, err)
	}
	if err := writeRow(f, sheet, 1, headerRow(header)); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 2, row); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// AppendRow writes row below the last row of sheet, counting rows whose cells
// are all blank.
func (w *Workbook) AppendRow(path, sheet string, row []interface{}) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	last, err := lastRow(f, sheet)
	if err != nil {
		return err
	}
	if err := writeRow(f, sheet, last+1, row); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func headerRow(header []string) []interface{} {
	out := make([]interface{}, len(header))
	for i, h := range header {
		out[i] = h
	}
	return out
}

// lastRow returns the number of the last row element in sheet. GetRows drops
// trailing blank rows, so the rows iterator is walked instead.
func lastRow(f *excelize.File, sheet string) (int, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Error(); err != nil {
		return 0, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return n, nil
}

// writeRow stores nil values as empty strings so blank rows keep their cells.
func writeRow(f *excelize.File, sheet string, rowIdx int, values []interface{}) error {
	for i, v := range values {
		if v == nil {
			values[i] = ""
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %q: %w", rowIdx, sheet, err)
	}
	return nil
}
