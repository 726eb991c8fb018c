package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"gradeboard/internal/core"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Results"

// FromXLSX parses the first worksheet of an Excel workbook.
func FromXLSX(b []byte, opts Options) (core.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return core.Table{}, &FormatError{Reason: fmt.Sprintf("not a valid xlsx workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return core.Table{}, &FormatError{Reason: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return core.Table{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return FromValues(rows, opts)
}

// WriteXLSX writes t as a single-sheet workbook in the upload format.
func WriteXLSX(w io.Writer, t core.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range t.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := []interface{}{string(r.Division), r.Class, r.Grade.String(), r.Count}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
