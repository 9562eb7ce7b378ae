package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/repository"
	"github.com/septivank/buoy-telemetry/internal/validator"
)

// Reader is the persistence needed by the dashboard queries
type Reader interface {
	ListSensorReadings(ctx context.Context, buoyID *int, limit int) ([]db.SensorReading, error)
	ListLocatedReadings(ctx context.Context, buoyID *int) ([]db.SensorReading, error)
	ListRawReadings(ctx context.Context, kind string, limit int) ([]db.RawReading, error)
	ListBuoys(ctx context.Context) ([]db.BuoySummary, error)
	DeleteSensorReading(ctx context.Context, id int64) error
	DeleteRawReading(ctx context.Context, id int64) error
	DeleteByBuoy(ctx context.Context, buoyID int) (readings int64, raws int64, err error)
}

// DeleteCounts reports how many records a buoy delete removed
type DeleteCounts struct {
	Readings int64 `json:"readings"`
	Raw      int64 `json:"raw"`
}

// QueryService serves stored readings to the dashboard
type QueryService struct {
	reader Reader
}

// NewQueryService creates a new query service
func NewQueryService(reader Reader) *QueryService {
	return &QueryService{reader: reader}
}

// RecentReadings returns the newest readings, optionally for one buoy
func (s *QueryService) RecentReadings(ctx context.Context, buoyID *int, limit int) ([]db.SensorReading, error) {
	readings, err := s.reader.ListSensorReadings(ctx, buoyID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return readings, nil
}

// RecentNotifications returns the newest modem notifications
func (s *QueryService) RecentNotifications(ctx context.Context, limit int) ([]db.RawReading, error) {
	return s.recentRaw(ctx, validator.KindNotification, limit)
}

// RecentMessages returns the newest raw messages, parsed or not
func (s *QueryService) RecentMessages(ctx context.Context, limit int) ([]db.RawReading, error) {
	return s.recentRaw(ctx, validator.KindMessage, limit)
}

func (s *QueryService) recentRaw(ctx context.Context, kind string, limit int) ([]db.RawReading, error) {
	raws, err := s.reader.ListRawReadings(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return raws, nil
}

// LocatedReadings returns readings with a GPS fix, oldest first, for
// drawing a buoy's track.
func (s *QueryService) LocatedReadings(ctx context.Context, buoyID *int) ([]db.SensorReading, error) {
	readings, err := s.reader.ListLocatedReadings(ctx, buoyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return readings, nil
}

// Buoys summarises the buoys that have reported readings
func (s *QueryService) Buoys(ctx context.Context) ([]db.BuoySummary, error) {
	buoys, err := s.reader.ListBuoys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return buoys, nil
}

// DeleteReading removes a reading and the raw text it came from
func (s *QueryService) DeleteReading(ctx context.Context, id int64) error {
	return mapDeleteError(s.reader.DeleteSensorReading(ctx, id))
}

// DeleteRaw removes a raw record
func (s *QueryService) DeleteRaw(ctx context.Context, id int64) error {
	return mapDeleteError(s.reader.DeleteRawReading(ctx, id))
}

// DeleteBuoy removes everything stored for a buoy
func (s *QueryService) DeleteBuoy(ctx context.Context, buoyID int) (DeleteCounts, error) {
	readings, raws, err := s.reader.DeleteByBuoy(ctx, buoyID)
	if err != nil {
		return DeleteCounts{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return DeleteCounts{Readings: readings, Raw: raws}, nil
}

func mapDeleteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
}
