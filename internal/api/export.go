package api

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/septivank/buoy-telemetry/internal/db"
)

const readingsSheet = "readings"

var readingColumns = []string{
	"ID", "Buoy", "Format", "Date", "Time",
	"Latitude", "Longitude", "pH", "Temperature (°C)", "TDS (ppm)", "Recorded At",
}

// BuildReadingsXLSX renders readings as a single-sheet workbook. NaN values
// and missing locations are left as empty cells.
func BuildReadingsXLSX(readings []db.SensorReading) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", readingsSheet)

	for i, title := range readingColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(readingsSheet, cell, title)
	}

	for i, r := range readings {
		row := i + 2
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("A%d", row), r.ID)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("B%d", row), r.BuoyID)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("C%d", row), r.Format)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("D%d", row), r.Date)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("E%d", row), r.Time)
		if r.HasLocation() {
			_ = f.SetCellValue(readingsSheet, fmt.Sprintf("F%d", row), *r.Latitude)
			_ = f.SetCellValue(readingsSheet, fmt.Sprintf("G%d", row), *r.Longitude)
		}
		setNumber(f, fmt.Sprintf("H%d", row), r.PH)
		setNumber(f, fmt.Sprintf("I%d", row), r.Temperature)
		setNumber(f, fmt.Sprintf("J%d", row), r.TDS)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("K%d", row), r.RecordedAt.UTC().Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setNumber(f *excelize.File, cell string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	_ = f.SetCellValue(readingsSheet, cell, v)
}
