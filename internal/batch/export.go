package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet used by WriteXLSX.
const SheetName = "Translations"

var exportHeader = []string{"position", "original", "translated"}

// Row pairs an input item with its translation by 1-based position.
type Row struct {
	Position   int
	Original   string
	Translated string
}

// Pair zips inputs and outputs by position. A side that is shorter than
// the other contributes empty strings.
func Pair(inputs, outputs []Item) []Row {
	n := len(inputs)
	if len(outputs) > n {
		n = len(outputs)
	}
	rows := make([]Row, n)
	for i := range rows {
		rows[i].Position = i + 1
		if i < len(inputs) {
			rows[i].Original = inputs[i].Text
		}
		if i < len(outputs) {
			rows[i].Translated = outputs[i].Text
		}
	}
	return rows
}

// WriteCSV writes rows with a position/original/translated header.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write([]string{strconv.Itoa(r.Position), r.Original, r.Translated}); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", r.Position, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// WriteXLSX writes rows into a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, title); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, r := range rows {
		values := []interface{}{r.Position, r.Original, r.Translated}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", r.Position, err)
			}
		}
	}

	if err := f.SetColWidth(SheetName, "B", "C", 60); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
