package api

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/septivank/buoy-telemetry/internal/db"
)

// BuildBuoyReportPDF renders a one-page summary of reporting buoys.
func BuildBuoyReportPDF(buoys []db.BuoySummary, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Buoy Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Buoys: %d", len(buoys)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Buoy", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Readings", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Last Seen (UTC)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, b := range buoys {
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", b.BuoyID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", b.ReadingCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(70, 6, b.LastSeenAt.UTC().Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
