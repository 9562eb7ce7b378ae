package service

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/anomaly"
	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/gateway"
	"github.com/septivank/buoy-telemetry/internal/logging"
	"github.com/septivank/buoy-telemetry/internal/mq"
	"github.com/septivank/buoy-telemetry/internal/observability"
	"github.com/septivank/buoy-telemetry/internal/parser"
	"github.com/septivank/buoy-telemetry/internal/validator"
)

// IngestRequest is one text received from the SMS gateway, over HTTP or
// from the ingest queue.
type IngestRequest struct {
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
	BuoyID    *int   `json:"buoyId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// IngestResult reports what was stored for a request.
type IngestResult struct {
	RawID     int64    `json:"rawId"`
	ReadingID *int64   `json:"readingId,omitempty"`
	BuoyID    int      `json:"buoyId"`
	Parsed    bool     `json:"parsed"`
	Failure   string   `json:"failure,omitempty"`
	Flags     []string `json:"flags,omitempty"`
}

// Store is the persistence needed by ingestion
type Store interface {
	SaveIngested(ctx context.Context, raw *db.RawReading, reading *db.SensorReading) error
	RecentTemperatures(ctx context.Context, buoyID int, limit int) ([]float64, error)
}

// EventPublisher publishes committed readings
type EventPublisher interface {
	PublishReadingEvent(ctx context.Context, event mq.ReadingEvent) error
}

// IngestService validates, parses and stores incoming messages
type IngestService struct {
	store       Store
	publisher   EventPublisher
	detector    *anomaly.Detector
	clock       clockwork.Clock
	metrics     *observability.Metrics
	historySize int
	logger      *zap.Logger
}

// NewIngestService creates a new ingestion service
func NewIngestService(
	store Store,
	publisher EventPublisher,
	detector *anomaly.Detector,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	historySize int,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		store:       store,
		publisher:   publisher,
		detector:    detector,
		clock:       clock,
		metrics:     metrics,
		historySize: historySize,
		logger:      logger,
	}
}

// Ingest stores the raw text and, for messages that parse, the structured
// reading in a single transaction. A message with too few fields is not an
// error: it is kept as raw only and reported with Parsed=false.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	start := s.clock.Now()
	defer func() {
		s.metrics.IngestDuration.Observe(s.clock.Since(start).Seconds())
	}()

	reqLogger := s.logger
	if req.RequestID != "" {
		reqLogger = logging.WithRequestID(s.logger, req.RequestID)
	}

	if v := validator.ValidateIngest(req.Content, req.Type); !v.IsValid {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrInvalidRequest, v.Reason)
	}
	if v := validator.ValidateBuoyID(req.BuoyID); !v.IsValid {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrInvalidRequest, v.Reason)
	}

	kind := validator.NormalizeKind(req.Type)
	receivedAt := start.UTC()

	var (
		parsed  parser.Reading
		parseOK bool
		failure string
	)
	if kind == validator.KindMessage {
		p, err := parser.Parse(req.Content)
		if err != nil {
			failure = err.Error()
			reqLogger.Info("message kept unparsed", zap.String("reason", failure))
		} else {
			parsed, parseOK = p, true
		}
	}

	buoyID := resolveBuoyID(req, parsed, parseOK)
	raw := &db.RawReading{
		Content:    req.Content,
		BuoyID:     buoyID,
		Kind:       kind,
		ReceivedAt: receivedAt,
	}

	var (
		reading *db.SensorReading
		flags   []string
	)
	if parseOK {
		flags = s.inspect(ctx, parsed, buoyID, reqLogger)
		reading = toSensorReading(parsed, buoyID, receivedAt)
	}

	if err := s.store.SaveIngested(ctx, raw, reading); err != nil {
		s.metrics.StorageErrors.Inc()
		reqLogger.Error("failed to store message", zap.Error(err), zap.Int("buoy_id", buoyID))
		return IngestResult{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	result := IngestResult{
		RawID:   raw.ID,
		BuoyID:  buoyID,
		Parsed:  parseOK,
		Failure: failure,
		Flags:   flags,
	}
	if reading != nil {
		id := reading.ID
		result.ReadingID = &id
	}

	s.record(kind, parsed, parseOK, flags)
	s.publish(ctx, raw, reading, parsed, result, reqLogger)

	reqLogger.Info("message ingested",
		zap.String("kind", kind),
		zap.Int64("raw_id", raw.ID),
		zap.Int("buoy_id", buoyID),
		zap.Bool("parsed", parseOK),
		zap.Strings("flags", flags),
	)

	return result, nil
}

// HandleDelivery is the queue entry point. JSON bodies are ingestion
// requests; plain text bodies are raw modem lines.
func (s *IngestService) HandleDelivery(ctx context.Context, contentType string, body []byte) error {
	req, err := decodeDelivery(contentType, body)
	if err != nil {
		return err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	_, err = s.Ingest(ctx, req)
	return err
}

func decodeDelivery(contentType string, body []byte) (IngestRequest, error) {
	mediaType := "application/json"
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return IngestRequest{}, fmt.Errorf("%w: content type %q: %v", ErrInvalidRequest, contentType, err)
		}
		mediaType = mt
	}

	switch mediaType {
	case "text/plain":
		env := gateway.Classify(string(body))
		return IngestRequest{Content: env.Content, Type: env.Kind}, nil
	case "application/json":
		var req IngestRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return IngestRequest{}, fmt.Errorf("%w: failed to unmarshal message: %v", ErrInvalidRequest, err)
		}
		return req, nil
	default:
		return IngestRequest{}, fmt.Errorf("%w: unsupported content type %q", ErrInvalidRequest, mediaType)
	}
}

// resolveBuoyID applies override, then parsed id, then a best effort read
// of the leading field.
func resolveBuoyID(req IngestRequest, parsed parser.Reading, parseOK bool) int {
	switch {
	case req.BuoyID != nil:
		return *req.BuoyID
	case parseOK:
		return parsed.BuoyID
	default:
		return parser.ExtractBuoyID(req.Content)
	}
}

func (s *IngestService) inspect(ctx context.Context, p parser.Reading, buoyID int, logger *zap.Logger) []string {
	history, err := s.store.RecentTemperatures(ctx, buoyID, s.historySize)
	if err != nil {
		logger.Warn("failed to get temperature history for anomaly flagging",
			zap.Error(err),
			zap.Int("buoy_id", buoyID),
		)
		history = nil
	}
	return s.detector.Inspect(p, history)
}

func (s *IngestService) record(kind string, p parser.Reading, parseOK bool, flags []string) {
	outcome := "stored"
	if kind == validator.KindMessage {
		outcome = "unparsed"
		if parseOK {
			outcome = "parsed"
		}
	}
	s.metrics.MessagesIngested.WithLabelValues(kind, outcome).Inc()

	for _, field := range p.Malformed {
		s.metrics.MalformedFields.WithLabelValues(field).Inc()
	}
	s.metrics.AnomalyFlags.Add(float64(len(flags)))
}

// publish sends the event after commit. Failures are logged only; the data
// is already stored.
func (s *IngestService) publish(
	ctx context.Context,
	raw *db.RawReading,
	reading *db.SensorReading,
	p parser.Reading,
	result IngestResult,
	logger *zap.Logger,
) {
	event := mq.ReadingEvent{
		EventID:    uuid.NewString(),
		RawID:      raw.ID,
		ReadingID:  result.ReadingID,
		BuoyID:     raw.BuoyID,
		Kind:       raw.Kind,
		Failure:    result.Failure,
		Anomalies:  result.Flags,
		ReceivedAt: raw.ReceivedAt.Format(time.RFC3339Nano),
	}
	if reading != nil {
		event.Format = reading.Format
		event.Date = reading.Date
		event.Time = reading.Time
		event.Latitude = reading.Latitude
		event.Longitude = reading.Longitude
		event.PH = NullableFloat(reading.PH)
		event.Temperature = NullableFloat(reading.Temperature)
		event.TDS = NullableFloat(reading.TDS)
		event.Malformed = p.Malformed
	}

	if err := s.publisher.PublishReadingEvent(ctx, event); err != nil {
		s.metrics.EventsPublished.WithLabelValues("error").Inc()
		logger.Error("failed to publish event",
			zap.Error(err),
			zap.Int64("raw_id", raw.ID),
		)
		return
	}
	s.metrics.EventsPublished.WithLabelValues("success").Inc()
}
