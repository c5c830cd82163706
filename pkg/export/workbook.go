package export

import (
	"fmt"
	"io"
	"time"

	"github.com/roffe/elevtrace/pkg/view"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

func WorkbookName(now time.Time) string {
	return "elevator_trace_" + now.Format("20060102_150405") + ".xlsx"
}

// WriteWorkbook writes every non empty view of s to its own sheet. A set
// with no rows at all gets a bit sheet holding only the header.
func WriteWorkbook(w io.Writer, s *view.Set) error {
	f := excelize.NewFile()
	defer f.Close()

	var names []view.Name
	for _, n := range view.Names {
		if s.Len(n) > 0 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = []view.Name{view.Bit}
	}
	for _, n := range names {
		records, err := Records(s, n)
		if err != nil {
			return err
		}
		if err := writeSheet(f, string(n), records); err != nil {
			return err
		}
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		return err
	}
	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, records [][]string) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", name, i+1, err)
		}
	}
	return f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
