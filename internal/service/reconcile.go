package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/observability"
	"github.com/septivank/buoy-telemetry/internal/parser"
)

// ReconcileStore is the persistence needed to replay raw messages
type ReconcileStore interface {
	ListUnparsedRaw(ctx context.Context, afterID int64, limit int) ([]db.RawReading, error)
	InsertSensorReading(ctx context.Context, reading *db.SensorReading) error
}

// ReconcileResult summarises one replay run
type ReconcileResult struct {
	Scanned     int   `json:"scanned"`
	Recovered   int   `json:"recovered"`
	Unparseable int   `json:"unparseable"`
	LastRawID   int64 `json:"lastRawId"`
}

// Reconciler re-parses raw messages that have no structured reading
type Reconciler struct {
	store   ReconcileStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store ReconcileStore, metrics *observability.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// Reconcile replays every unparsed raw message
func (r *Reconciler) Reconcile(ctx context.Context, batchSize int) (ReconcileResult, error) {
	return r.ReconcileFrom(ctx, 0, batchSize)
}

// ReconcileFrom replays unparsed raw messages with an id above afterID in
// pages of batchSize. Recovered readings keep the raw record's buoy id and
// receive time. The partial result is returned with any error; its LastRawID
// is the last raw message fully handled, so a rerun from it retries the
// failed one.
func (r *Reconciler) ReconcileFrom(ctx context.Context, afterID int64, batchSize int) (ReconcileResult, error) {
	if batchSize <= 0 {
		return ReconcileResult{}, fmt.Errorf("%w: batch size must be positive", ErrInvalidRequest)
	}

	result := ReconcileResult{LastRawID: afterID}
	cursor := afterID
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := r.store.ListUnparsedRaw(ctx, cursor, batchSize)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrStorage, err)
		}

		for _, raw := range batch {
			result.Scanned++

			p, err := parser.Parse(raw.Content)
			if err != nil {
				result.LastRawID = raw.ID
				result.Unparseable++
				r.metrics.Reconciled.WithLabelValues("unparseable").Inc()
				continue
			}

			rawID := raw.ID
			reading := toSensorReading(p, raw.BuoyID, raw.ReceivedAt)
			reading.RawReadingID = &rawID
			if err := r.store.InsertSensorReading(ctx, reading); err != nil {
				r.logger.Error("failed to store recovered reading",
					zap.Error(err),
					zap.Int64("raw_id", raw.ID),
				)
				return result, fmt.Errorf("%w: %w", ErrStorage, err)
			}
			result.LastRawID = raw.ID
			result.Recovered++
			r.metrics.Reconciled.WithLabelValues("recovered").Inc()
		}

		if len(batch) > 0 {
			cursor = batch[len(batch)-1].ID
		}
		if len(batch) < batchSize {
			break
		}
	}

	r.logger.Info("reconcile finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("recovered", result.Recovered),
		zap.Int("unparseable", result.Unparseable),
		zap.Int64("last_raw_id", result.LastRawID),
	)
	return result, nil
}
