package history

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const sheetName = "History"

var exportHeader = []any{"ID", "Date", "Pollution types", "Risk level", "Confidence", "Summary", "Recommendations"}

// WriteXLSX выгружает историю таблицей, по строке на запись.
func WriteXLSX(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("history: xlsx sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &exportHeader); err != nil {
		return fmt.Errorf("history: xlsx header: %w", err)
	}
	for i, e := range entries {
		cats := make([]string, 0, len(e.Result.Categories))
		for _, c := range e.Result.Categories {
			cats = append(cats, string(c))
		}
		row := []any{
			string(e.ID),
			e.Date.UTC().Format(time.RFC3339),
			strings.Join(cats, ", "),
			string(e.Result.RiskLevel),
			e.Result.Confidence,
			e.Result.Summary,
			strings.Join(e.Result.Recommendations, "\n"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("history: xlsx row %d: %w", i+1, err)
		}
	}
	_ = f.SetColWidth(sheetName, "A", "A", 30)
	_ = f.SetColWidth(sheetName, "F", "G", 60)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("history: xlsx write: %w", err)
	}
	return nil
}
