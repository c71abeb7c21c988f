// Package interfaces renders alarm event exports.
package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

// BuildEventsXLSX renders the event list as a spreadsheet.
func BuildEventsXLSX(events []alarms.Event) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "events"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Created")
	_ = f.SetCellValue(sheet, "B1", "Alarm")
	_ = f.SetCellValue(sheet, "C1", "Summary")
	_ = f.SetCellValue(sheet, "D1", "Description")
	for i, event := range events {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), event.Created.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), event.AlarmName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), event.Summary)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), event.Description)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEventReportPDF renders a printable event report.
func BuildEventReportPDF(events []alarms.Event) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alarm Event Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d", len(events)))
	pdf.Ln(8)

	for _, event := range events {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, fmt.Sprintf("%s  %s", event.Created.UTC().Format(time.RFC3339), event.AlarmName))
		pdf.Ln(5)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, event.Summary, "", "L", false)
		if event.Description != "" {
			pdf.MultiCell(0, 5, event.Description, "", "L", false)
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
