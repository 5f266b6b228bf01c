package httpapi

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"yield/internal/policy"
	"yield/internal/service"
)

const (
	summarySheet = "Summary"
	entriesSheet = "Entries"
)

var reportSummaryHeader = []string{
	"Item", "Unit", "Baseline Input", "Baseline Output", "Locked",
	"Entries", "Green", "Yellow", "Red", "Unknown",
	"Total Input", "Total Output", "Waste Cost", "Cost Unknown",
}

var reportEntriesHeader = []string{
	"Item", "Entry Date", "Period", "Input Used", "Output Count",
	"Expected", "Shortfall", "Loss %", "Waste Cost", "Classification",
}

var classificationColors = map[policy.Classification]string{
	policy.Green:   "#C6EFCE",
	policy.Yellow:  "#FFEB9C",
	policy.Red:     "#FFC7CE",
	policy.Unknown: "#E7E6E6",
}

// GenerateLocationReportExcel renders a location variance report as an XLSX
// workbook with a per-item summary sheet and a per-entry sheet. Unknown
// measures are left blank.
func GenerateLocationReportExcel(report *service.LocationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	classStyles := make(map[policy.Classification]int, len(classificationColors))
	for c, color := range classificationColors {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s style: %w", c, err)
		}
		classStyles[c] = id
	}

	for sheet, header := range map[string][]string{summarySheet: reportSummaryHeader, entriesSheet: reportEntriesHeader} {
		if err := writeHeader(f, sheet, header, headerStyle); err != nil {
			return nil, err
		}
	}

	entryRow := 2
	for i, ir := range report.Items {
		row := i + 2
		s := ir.Summary
		values := []any{
			ir.Item.Name, ir.Item.Unit, optional(ir.Item.BaselineInput), optional(ir.Item.BaselineOutput), yesNo(ir.Item.BaselineLocked),
			s.Entries, s.Green, s.Yellow, s.Red, s.Unknown,
			s.TotalInput, s.TotalOutput, s.WasteCost, s.CostUnknown,
		}
		if err := writeRow(f, summarySheet, row, values); err != nil {
			return nil, err
		}

		for _, e := range ir.Entries {
			v := e.Variance
			period := ""
			if e.PeriodLabel != nil {
				period = *e.PeriodLabel
			}
			values := []any{
				ir.Item.Name, e.EntryDate, period, e.InputUsed, e.OutputCount,
				measure(v.Expected), measure(v.Shortfall), percent(v.LossPct), measure(v.WasteCost), string(v.Classification),
			}
			if err := writeRow(f, entriesSheet, entryRow, values); err != nil {
				return nil, err
			}
			cell, err := excelize.CoordinatesToCellName(len(values), entryRow)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(entriesSheet, cell, cell, classStyles[v.Classification]); err != nil {
				return nil, fmt.Errorf("failed to style classification: %w", err)
			}
			entryRow++
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	for col, name := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, colName, colName, 16); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func measure(m policy.Measure) any {
	if !m.Known {
		return nil
	}
	return m.Value
}

func percent(m policy.Measure) any {
	if !m.Known {
		return nil
	}
	return m.Value * 100
}

func optional(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
