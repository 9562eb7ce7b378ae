package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys for reading events
const (
	RoutingKeyParsed       = "buoy.reading.parsed"
	RoutingKeyUnparsed     = "buoy.reading.unparsed"
	RoutingKeyNotification = "buoy.notification"
)

// ReadingEvent is published after an ingested message is committed.
// Sensor values that are NaN are sent as null.
type ReadingEvent struct {
	EventID     string   `json:"event_id"`
	RawID       int64    `json:"raw_id"`
	ReadingID   *int64   `json:"reading_id,omitempty"`
	BuoyID      int      `json:"buoy_id"`
	Kind        string   `json:"kind"`
	Format      string   `json:"format,omitempty"`
	Date        string   `json:"date,omitempty"`
	Time        string   `json:"time,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	PH          *float64 `json:"ph,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TDS         *float64 `json:"tds,omitempty"`
	Malformed   []string `json:"malformed,omitempty"`
	Anomalies   []string `json:"anomalies,omitempty"`
	Failure     string   `json:"failure,omitempty"`
	ReceivedAt  string   `json:"received_at"`
}

// RoutingKey picks the routing key for the event
func (e ReadingEvent) RoutingKey() string {
	switch {
	case e.Kind == "notification":
		return RoutingKeyNotification
	case e.ReadingID != nil:
		return RoutingKeyParsed
	default:
		return RoutingKeyUnparsed
	}
}

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishReadingEvent publishes an ingested reading event
func (p *Publisher) PublishReadingEvent(ctx context.Context, event ReadingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	routingKey := event.RoutingKey()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published reading event",
		zap.String("routing_key", routingKey),
		zap.Int64("raw_id", event.RawID),
		zap.Int("buoy_id", event.BuoyID),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// LoggingPublisher stands in for Publisher when no broker is configured.
type LoggingPublisher struct {
	logger *zap.Logger
}

// NewLoggingPublisher creates a publisher that only logs events
func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

// PublishReadingEvent logs the event at debug level
func (p *LoggingPublisher) PublishReadingEvent(_ context.Context, event ReadingEvent) error {
	p.logger.Debug("reading event (broker disabled)",
		zap.String("routing_key", event.RoutingKey()),
		zap.Int64("raw_id", event.RawID),
		zap.Int("buoy_id", event.BuoyID),
	)
	return nil
}
