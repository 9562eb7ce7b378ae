package service

import (
	"math"
	"time"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/parser"
)

// toSensorReading maps a parsed message to its storage record
func toSensorReading(p parser.Reading, buoyID int, recordedAt time.Time) *db.SensorReading {
	reading := &db.SensorReading{
		BuoyID:      buoyID,
		Format:      p.Format.String(),
		Date:        p.Date,
		Time:        p.Time,
		PH:          p.PH,
		Temperature: p.Temperature,
		TDS:         p.TDS,
		RecordedAt:  recordedAt,
	}
	if p.Location != nil {
		lat, lng := p.Location.Lat, p.Location.Lng
		reading.Latitude = &lat
		reading.Longitude = &lng
	}
	return reading
}

// NullableFloat returns nil for NaN so the value encodes as JSON null.
func NullableFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
