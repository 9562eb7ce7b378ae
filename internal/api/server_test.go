package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/observability"
	"github.com/septivank/buoy-telemetry/internal/service"
)

var testTime = time.Date(2024, 1, 5, 6, 30, 0, 0, time.UTC)

type fakeIngester struct {
	got    service.IngestRequest
	result service.IngestResult
	err    error
}

func (f *fakeIngester) Ingest(_ context.Context, req service.IngestRequest) (service.IngestResult, error) {
	f.got = req
	return f.result, f.err
}

type fakeQuerier struct {
	readings      []db.SensorReading
	messages      []db.RawReading
	notifications []db.RawReading
	buoys         []db.BuoySummary
	gotBuoy       *int
	gotLimit      int
	deleteErr     error
	queryErr      error
	deletedID     int64
}

func (f *fakeQuerier) RecentReadings(_ context.Context, buoyID *int, limit int) ([]db.SensorReading, error) {
	f.gotBuoy, f.gotLimit = buoyID, limit
	return f.readings, f.queryErr
}

func (f *fakeQuerier) RecentNotifications(_ context.Context, limit int) ([]db.RawReading, error) {
	f.gotLimit = limit
	return f.notifications, f.queryErr
}

func (f *fakeQuerier) RecentMessages(_ context.Context, _ int) ([]db.RawReading, error) {
	return f.messages, f.queryErr
}

func (f *fakeQuerier) LocatedReadings(_ context.Context, buoyID *int) ([]db.SensorReading, error) {
	f.gotBuoy = buoyID
	return f.readings, f.queryErr
}

func (f *fakeQuerier) Buoys(context.Context) ([]db.BuoySummary, error) {
	return f.buoys, f.queryErr
}

func (f *fakeQuerier) DeleteReading(_ context.Context, id int64) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeQuerier) DeleteRaw(_ context.Context, id int64) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeQuerier) DeleteBuoy(_ context.Context, buoyID int) (service.DeleteCounts, error) {
	f.deletedID = int64(buoyID)
	return service.DeleteCounts{Readings: 2, Raw: 3}, f.deleteErr
}

type fakeReconciler struct {
	gotBatch int
}

func (f *fakeReconciler) Reconcile(_ context.Context, batchSize int) (service.ReconcileResult, error) {
	f.gotBatch = batchSize
	return service.ReconcileResult{Scanned: 4, Recovered: 1, Unparseable: 3}, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Ping(context.Context) error { return f.err }

type fixture struct {
	server     *Server
	ingester   *fakeIngester
	queries    *fakeQuerier
	reconciler *fakeReconciler
}

func newFixture(health HealthChecker) *fixture {
	f := &fixture{
		ingester:   &fakeIngester{},
		queries:    &fakeQuerier{},
		reconciler: &fakeReconciler{},
	}
	f.server = New(
		Config{ListenAddr: ":0", DefaultLimit: 50, MaxLimit: 100, ReconcileBatchSize: 200},
		f.ingester, f.queries, f.reconciler, health,
		observability.NewMetricsForTesting(), zap.NewNop(),
	)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestIngestEndpoints(t *testing.T) {
	for _, path := range []string{"/message", "/api/messages"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(fakeHealth{})
			readingID := int64(8)
			f.ingester.result = service.IngestResult{RawID: 7, ReadingID: &readingID, BuoyID: 1, Parsed: true}

			rec := f.do(t, http.MethodPost, path, `{"content":"1,2024-01-05,14:30,GPSERR,7,28,450","type":"message","buoyId":1}`)
			require.Equal(t, http.StatusOK, rec.Code)

			body := decode(t, rec)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, 7.0, body["rawId"])
			assert.Equal(t, 8.0, body["readingId"])
			assert.Equal(t, true, body["parsed"])

			assert.Equal(t, "message", f.ingester.got.Type)
			require.NotNil(t, f.ingester.got.BuoyID)
			assert.Equal(t, 1, *f.ingester.got.BuoyID)
			assert.NotEmpty(t, f.ingester.got.RequestID)
			assert.Equal(t, f.ingester.got.RequestID, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestIngest_MissingContent(t *testing.T) {
	for _, body := range []string{"", `{}`, `{"content":"  "}`} {
		f := newFixture(fakeHealth{})
		rec := f.do(t, http.MethodPost, "/message", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No message content provided", decode(t, rec)["error"])
	}
}

func TestIngest_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{errors.Join(service.ErrInvalidRequest, errors.New("unknown message type")), http.StatusBadRequest},
		{errors.Join(service.ErrStorage, errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		f := newFixture(fakeHealth{})
		f.ingester.err = tt.err
		rec := f.do(t, http.MethodPost, "/message", `{"content":"x"}`)
		assert.Equal(t, tt.code, rec.Code)
	}
}

func TestLegacyMessagesShape(t *testing.T) {
	f := newFixture(fakeHealth{})
	f.queries.messages = []db.RawReading{
		{ID: 2, Content: "newer", Kind: db.KindMessage, ReceivedAt: testTime.Add(time.Minute)},
		{ID: 1, Content: "older", Kind: db.KindMessage, ReceivedAt: testTime},
	}
	f.queries.notifications = []db.RawReading{
		{ID: 3, Content: "New SMS received at index 1", Kind: db.KindNotification, ReceivedAt: testTime},
	}

	rec := f.do(t, http.MethodGet, "/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	assert.Equal(t, "older", first["content"])
	assert.Equal(t, "message", first["type"])
	assert.NotEmpty(t, first["timestamp"])
	assert.Len(t, body["notifications"].([]any), 1)
}

func TestReadings_NaNRenderedAsNull(t *testing.T) {
	f := newFixture(fakeHealth{})
	lat, lng := 7.31, 126.51
	f.queries.readings = []db.SensorReading{{
		ID: 1, BuoyID: 1, Format: "extended", Date: "2024-01-05", Time: "14:30",
		Latitude: &lat, Longitude: &lng,
		PH: math.NaN(), Temperature: 28.5, TDS: 450, RecordedAt: testTime,
	}}

	rec := f.do(t, http.MethodGet, "/api/readings?buoyId=1&limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, f.queries.gotBuoy)
	assert.Equal(t, 1, *f.queries.gotBuoy)
	assert.Equal(t, 100, f.queries.gotLimit)

	data := decode(t, rec)["data"].([]any)
	require.Len(t, data, 1)
	reading := data[0].(map[string]any)
	assert.Nil(t, reading["ph"])
	assert.Equal(t, 28.5, reading["temperature"])
	assert.Equal(t, map[string]any{"lat": 7.31, "lng": 126.51}, reading["location"])
}

func TestReadings_QueryValidation(t *testing.T) {
	f := newFixture(fakeHealth{})

	for _, path := range []string{
		"/api/readings?limit=0",
		"/api/readings?limit=abc",
		"/api/readings?buoyId=-1",
		"/api/readings/path?buoyId=x",
		"/api/notifications?limit=-5",
	} {
		rec := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec := f.do(t, http.MethodGet, "/api/readings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.queries.gotBuoy)
	assert.Equal(t, 50, f.queries.gotLimit)
}

func TestReadings_StorageError(t *testing.T) {
	f := newFixture(fakeHealth{})
	f.queries.queryErr = errors.Join(service.ErrStorage, errors.New("boom"))

	rec := f.do(t, http.MethodGet, "/api/buoys", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(fakeHealth{})
	f.queries.readings = []db.SensorReading{
		{ID: 1, BuoyID: 2, Format: "legacy", Date: "2024-01-05", Time: "14:30", PH: 7.2, Temperature: math.NaN(), TDS: 450, RecordedAt: testTime},
	}

	rec := f.do(t, http.MethodGet, "/api/readings/export.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxMIME, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "readings.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()

	header, err := book.GetCellValue(readingsSheet, "H1")
	require.NoError(t, err)
	assert.Equal(t, "pH", header)

	ph, err := book.GetCellValue(readingsSheet, "H2")
	require.NoError(t, err)
	assert.Equal(t, "7.2", ph)

	temperature, err := book.GetCellValue(readingsSheet, "I2")
	require.NoError(t, err)
	assert.Empty(t, temperature)

	lat, err := book.GetCellValue(readingsSheet, "F2")
	require.NoError(t, err)
	assert.Empty(t, lat)
}

func TestBuoyReportPDF(t *testing.T) {
	f := newFixture(fakeHealth{})
	f.queries.buoys = []db.BuoySummary{{BuoyID: 1, ReadingCount: 12, LastSeenAt: testTime}}

	rec := f.do(t, http.MethodGet, "/api/buoys/report.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pdfMIME, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestDeletes(t *testing.T) {
	f := newFixture(fakeHealth{})

	rec := f.do(t, http.MethodDelete, "/api/readings/12", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), f.queries.deletedID)

	rec = f.do(t, http.MethodDelete, "/api/raw/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.queries.deleteErr = service.ErrNotFound
	rec = f.do(t, http.MethodDelete, "/api/raw/5", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.queries.deleteErr = nil
	rec = f.do(t, http.MethodDelete, "/api/buoys/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode(t, rec)["deleted"].(map[string]any)
	assert.Equal(t, 2.0, deleted["readings"])
	assert.Equal(t, 3.0, deleted["raw"])
}

func TestReconcileEndpoint(t *testing.T) {
	f := newFixture(fakeHealth{})

	rec := f.do(t, http.MethodPost, "/api/admin/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, f.reconciler.gotBatch)
	assert.Equal(t, 1.0, decode(t, rec)["recovered"])

	rec = f.do(t, http.MethodPost, "/api/admin/reconcile?batchSize=25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, f.reconciler.gotBatch)

	rec = f.do(t, http.MethodPost, "/api/admin/reconcile?batchSize=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(fakeHealth{})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "").Code)

	down := newFixture(fakeHealth{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(fakeHealth{})
	rec := f.do(t, http.MethodOptions, "/api/readings", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
