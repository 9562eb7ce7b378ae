package api

import (
	"slices"
	"time"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/service"
)

type locationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// readingDTO renders NaN sensor values as null
type readingDTO struct {
	ID           int64        `json:"id"`
	RawReadingID *int64       `json:"rawReadingId"`
	BuoyID       int          `json:"buoyId"`
	Format       string       `json:"format"`
	Date         string       `json:"date"`
	Time         string       `json:"time"`
	Location     *locationDTO `json:"location"`
	PH           *float64     `json:"ph"`
	Temperature  *float64     `json:"temperature"`
	TDS          *float64     `json:"tds"`
	RecordedAt   time.Time    `json:"recordedAt"`
}

type rawDTO struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	BuoyID    int       `json:"buoyId"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type buoyDTO struct {
	BuoyID       int       `json:"buoyId"`
	ReadingCount int64     `json:"readingCount"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

type ingestResponse struct {
	Success bool `json:"success"`
	service.IngestResult
}

func toReadingDTO(r db.SensorReading) readingDTO {
	dto := readingDTO{
		ID:           r.ID,
		RawReadingID: r.RawReadingID,
		BuoyID:       r.BuoyID,
		Format:       r.Format,
		Date:         r.Date,
		Time:         r.Time,
		PH:           service.NullableFloat(r.PH),
		Temperature:  service.NullableFloat(r.Temperature),
		TDS:          service.NullableFloat(r.TDS),
		RecordedAt:   r.RecordedAt,
	}
	if r.HasLocation() {
		dto.Location = &locationDTO{Lat: *r.Latitude, Lng: *r.Longitude}
	}
	return dto
}

func toReadingDTOs(readings []db.SensorReading) []readingDTO {
	out := make([]readingDTO, 0, len(readings))
	for _, r := range readings {
		out = append(out, toReadingDTO(r))
	}
	return out
}

func toRawDTOs(raws []db.RawReading) []rawDTO {
	out := make([]rawDTO, 0, len(raws))
	for _, r := range raws {
		out = append(out, rawDTO{
			ID:        r.ID,
			Content:   r.Content,
			BuoyID:    r.BuoyID,
			Type:      r.Kind,
			Timestamp: r.ReceivedAt,
		})
	}
	return out
}

// oldestFirst reverses a newest-first listing
func oldestFirst(raws []rawDTO) []rawDTO {
	slices.Reverse(raws)
	return raws
}

func toBuoyDTOs(buoys []db.BuoySummary) []buoyDTO {
	out := make([]buoyDTO, 0, len(buoys))
	for _, b := range buoys {
		out = append(out, buoyDTO{BuoyID: b.BuoyID, ReadingCount: b.ReadingCount, LastSeenAt: b.LastSeenAt})
	}
	return out
}
