package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/observability"
)

func TestReconcile_RecoversOrphanedRaw(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	// rows written before raw and structured records shared a transaction
	for _, content := range []string{extendedMessage, "junk", legacyMessage, "1,2"} {
		raw := &db.RawReading{Content: content, BuoyID: 4, Kind: db.KindMessage, ReceivedAt: testNow}
		require.NoError(t, store.SaveIngested(ctx, raw, nil))
	}
	note := &db.RawReading{Content: "New SMS received at index 2", Kind: db.KindNotification, ReceivedAt: testNow}
	require.NoError(t, store.SaveIngested(ctx, note, nil))

	metrics := observability.NewMetricsForTesting()
	r := NewReconciler(store, metrics, zap.NewNop())

	res, err := r.Reconcile(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 2, res.Recovered)
	assert.Equal(t, 2, res.Unparseable)

	require.Len(t, store.readings, 2)
	for _, reading := range store.readings {
		require.NotNil(t, reading.RawReadingID)
		assert.Equal(t, 4, reading.BuoyID)
		assert.Equal(t, testNow, reading.RecordedAt)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Reconciled.WithLabelValues("recovered")))

	again, err := r.Reconcile(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Recovered)
	assert.Equal(t, 2, again.Unparseable)
}

func TestReconcile_FromCursor(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		raw := &db.RawReading{Content: extendedMessage, Kind: db.KindMessage, ReceivedAt: testNow}
		require.NoError(t, store.SaveIngested(ctx, raw, nil))
	}

	r := NewReconciler(store, observability.NewMetricsForTesting(), zap.NewNop())
	res, err := r.ReconcileFrom(ctx, store.raws[0].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Recovered)
	assert.Equal(t, store.raws[2].ID, res.LastRawID)
}

func TestReconcile_InsertFailureKeepsCursor(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	for _, content := range []string{"junk", extendedMessage} {
		raw := &db.RawReading{Content: content, Kind: db.KindMessage, ReceivedAt: testNow}
		require.NoError(t, store.SaveIngested(ctx, raw, nil))
	}
	store.insertErr = errors.New("connection reset")

	r := NewReconciler(store, observability.NewMetricsForTesting(), zap.NewNop())
	res, err := r.Reconcile(ctx, 10)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 0, res.Recovered)
	// the junk row was handled, the failed one was not
	assert.Equal(t, store.raws[0].ID, res.LastRawID)

	store.insertErr = nil
	res, err = r.ReconcileFrom(ctx, res.LastRawID, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recovered)
	assert.Equal(t, store.raws[1].ID, res.LastRawID)
}

func TestReconcile_RejectsBadBatch(t *testing.T) {
	r := NewReconciler(newFakeStore(), observability.NewMetricsForTesting(), zap.NewNop())
	_, err := r.Reconcile(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
