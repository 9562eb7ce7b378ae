package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/buoy-telemetry/internal/db"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// ErrNotFound is returned when a delete targets a missing record
var ErrNotFound = errors.New("record not found")

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// BeginTx starts a new transaction
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// SaveIngested stores a raw reading and, when non-nil, its structured
// reading in one transaction. IDs are written back into both records and
// the structured reading is linked to the raw one.
func (r *Repository) SaveIngested(ctx context.Context, raw *db.RawReading, reading *db.SensorReading) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.InsertRawReadingTx(ctx, tx, raw); err != nil {
		return err
	}

	if reading != nil {
		reading.RawReadingID = &raw.ID
		if err := r.InsertSensorReadingTx(ctx, tx, reading); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertRawReadingTx inserts a raw reading within a transaction
func (r *Repository) InsertRawReadingTx(ctx context.Context, tx pgx.Tx, raw *db.RawReading) error {
	query := `
		INSERT INTO raw_readings (content, buoy_id, kind, received_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := tx.QueryRow(ctx, query, raw.Content, raw.BuoyID, raw.Kind, raw.ReceivedAt).Scan(&raw.ID)
	if err != nil {
		return fmt.Errorf("failed to insert raw reading: %w", err)
	}

	return nil
}

// InsertSensorReadingTx inserts a sensor reading within a transaction
func (r *Repository) InsertSensorReadingTx(ctx context.Context, tx pgx.Tx, reading *db.SensorReading) error {
	query := `
		INSERT INTO sensor_readings (
			raw_reading_id, buoy_id, format, date, time,
			latitude, longitude, ph, temperature, tds, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := tx.QueryRow(ctx, query,
		reading.RawReadingID,
		reading.BuoyID,
		reading.Format,
		reading.Date,
		reading.Time,
		reading.Latitude,
		reading.Longitude,
		reading.PH,
		reading.Temperature,
		reading.TDS,
		reading.RecordedAt,
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}

	return nil
}

// InsertSensorReading inserts a single sensor reading outside of ingestion,
// used when replaying raw readings.
func (r *Repository) InsertSensorReading(ctx context.Context, reading *db.SensorReading) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.InsertSensorReadingTx(ctx, tx, reading); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentTemperatures gets the latest temperatures of a buoy for anomaly flagging
func (r *Repository) RecentTemperatures(ctx context.Context, buoyID int, limit int) ([]float64, error) {
	query := `
		SELECT temperature
		FROM sensor_readings
		WHERE buoy_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, buoyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent temperatures: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return values, nil
}

const sensorReadingColumns = `
	id, raw_reading_id, buoy_id, format, date, time,
	latitude, longitude, ph, temperature, tds, recorded_at
`

// ListSensorReadings returns the newest sensor readings, optionally for one buoy
func (r *Repository) ListSensorReadings(ctx context.Context, buoyID *int, limit int) ([]db.SensorReading, error) {
	query := `
		SELECT ` + sensorReadingColumns + `
		FROM sensor_readings
		WHERE ($1::integer IS NULL OR buoy_id = $1)
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, buoyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	return collectSensorReadings(rows)
}

// ListLocatedReadings returns readings with a GPS fix, oldest first, for
// path rendering.
func (r *Repository) ListLocatedReadings(ctx context.Context, buoyID *int) ([]db.SensorReading, error) {
	query := `
		SELECT ` + sensorReadingColumns + `
		FROM sensor_readings
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		  AND ($1::integer IS NULL OR buoy_id = $1)
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, buoyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query located readings: %w", err)
	}
	return collectSensorReadings(rows)
}

// ListRawReadings returns the newest raw readings of a kind
func (r *Repository) ListRawReadings(ctx context.Context, kind string, limit int) ([]db.RawReading, error) {
	query := `
		SELECT id, content, buoy_id, kind, received_at
		FROM raw_readings
		WHERE kind = $1
		ORDER BY received_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw readings: %w", err)
	}
	return collectRawReadings(rows)
}

// ListUnparsedRaw pages through raw messages that have no sensor reading
// referencing them, in id order starting after afterID.
func (r *Repository) ListUnparsedRaw(ctx context.Context, afterID int64, limit int) ([]db.RawReading, error) {
	query := `
		SELECT r.id, r.content, r.buoy_id, r.kind, r.received_at
		FROM raw_readings r
		WHERE r.kind = 'message'
		  AND r.id > $1
		  AND NOT EXISTS (SELECT 1 FROM sensor_readings s WHERE s.raw_reading_id = r.id)
		ORDER BY r.id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unparsed raw readings: %w", err)
	}
	return collectRawReadings(rows)
}

// ListBuoys summarises sensor readings per buoy
func (r *Repository) ListBuoys(ctx context.Context) ([]db.BuoySummary, error) {
	query := `
		SELECT buoy_id, COUNT(*), MAX(recorded_at)
		FROM sensor_readings
		GROUP BY buoy_id
		ORDER BY buoy_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query buoys: %w", err)
	}
	defer rows.Close()

	summaries := make([]db.BuoySummary, 0)
	for rows.Next() {
		var s db.BuoySummary
		if err := rows.Scan(&s.BuoyID, &s.ReadingCount, &s.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan buoy summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return summaries, nil
}

// DeleteSensorReading removes a sensor reading together with the raw
// reading it was parsed from.
func (r *Repository) DeleteSensorReading(ctx context.Context, id int64) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var rawID *int64
	err = tx.QueryRow(ctx, `DELETE FROM sensor_readings WHERE id = $1 RETURNING raw_reading_id`, id).Scan(&rawID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete sensor reading: %w", err)
	}

	if rawID != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM raw_readings WHERE id = $1`, *rawID); err != nil {
			return fmt.Errorf("failed to delete raw reading: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteRawReading removes one raw reading. A sensor reading parsed from
// it is kept and loses its link.
func (r *Repository) DeleteRawReading(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM raw_readings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete raw reading: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByBuoy removes every sensor and raw reading of a buoy in one
// transaction and returns how many of each were deleted.
func (r *Repository) DeleteByBuoy(ctx context.Context, buoyID int) (readings int64, raws int64, err error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM sensor_readings WHERE buoy_id = $1`, buoyID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete sensor readings: %w", err)
	}
	readings = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM raw_readings WHERE buoy_id = $1`, buoyID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete raw readings: %w", err)
	}
	raws = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return readings, raws, nil
}

func collectSensorReadings(rows pgx.Rows) ([]db.SensorReading, error) {
	defer rows.Close()

	readings := make([]db.SensorReading, 0)
	for rows.Next() {
		var s db.SensorReading
		if err := rows.Scan(
			&s.ID,
			&s.RawReadingID,
			&s.BuoyID,
			&s.Format,
			&s.Date,
			&s.Time,
			&s.Latitude,
			&s.Longitude,
			&s.PH,
			&s.Temperature,
			&s.TDS,
			&s.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		readings = append(readings, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

func collectRawReadings(rows pgx.Rows) ([]db.RawReading, error) {
	defer rows.Close()

	raws := make([]db.RawReading, 0)
	for rows.Next() {
		var raw db.RawReading
		if err := rows.Scan(&raw.ID, &raw.Content, &raw.BuoyID, &raw.Kind, &raw.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raw reading: %w", err)
		}
		raws = append(raws, raw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return raws, nil
}
