package db

import (
	"time"
)

// Kinds of raw readings
const (
	KindMessage      = "message"
	KindNotification = "notification"
)

// RawReading is an ingested text exactly as received. Every ingested
// message produces one, whether or not it parses.
type RawReading struct {
	ID         int64
	Content    string
	BuoyID     int
	Kind       string
	ReceivedAt time.Time
}

// SensorReading is the structured form of a raw message that parsed.
// Latitude and Longitude are both set or both nil. PH, Temperature and TDS
// may be NaN.
type SensorReading struct {
	ID           int64
	RawReadingID *int64
	BuoyID       int
	Format       string
	Date         string
	Time         string
	Latitude     *float64
	Longitude    *float64
	PH           float64
	Temperature  float64
	TDS          float64
	RecordedAt   time.Time
}

// HasLocation reports whether the reading carries a GPS fix
func (r *SensorReading) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// BuoySummary aggregates readings per buoy
type BuoySummary struct {
	BuoyID       int
	ReadingCount int64
	LastSeenAt   time.Time
}
