package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	dialAttempts = 5
	dialBackoff  = 2 * time.Second
)

// ErrBrokerClosed is returned by Ping once the broker connection is gone.
var ErrBrokerClosed = errors.New("rabbitmq connection closed")

// Connection is a broker connection shared by the ingest consumer and the
// event publisher.
type Connection struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

// NewConnection dials RabbitMQ and ties the connection to the fx app
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url string) (*Connection, error) {
	c, err := Dial(context.Background(), logger, url, dialAttempts, dialBackoff)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go c.watch()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})

	return c, nil
}

// Dial connects to url, trying up to attempts times with backoff between
// tries. The broker often comes up after the service in compose setups.
func Dial(ctx context.Context, logger *zap.Logger, url string, attempts int, backoff time.Duration) (*Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Info("connecting to rabbitmq", zap.Int("attempt", attempt))

		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info("rabbitmq connection established")
			return &Connection{conn: conn, logger: logger}, nil
		}
		lastErr = err
		logger.Warn("rabbitmq dial failed", zap.Error(err), zap.Int("attempt", attempt))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("[RABBITMQ CONNECTION FAILED] cannot connect to RabbitMQ after %d attempts. Check that RabbitMQ is running and RABBITMQ_URL is correct: %w", attempts, lastErr)
}

// watch logs an unexpected connection loss. Deliveries stop and /readyz
// reports the broker as down until the service is restarted.
func (c *Connection) watch() {
	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	if amqpErr, ok := <-closed; ok && amqpErr != nil {
		c.logger.Error("rabbitmq connection lost",
			zap.Int("code", amqpErr.Code),
			zap.String("reason", amqpErr.Reason),
		)
	}
}

// Channel creates a new RabbitMQ channel
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

// Ping reports whether the connection is still open
func (c *Connection) Ping(context.Context) error {
	if c.conn.IsClosed() {
		return ErrBrokerClosed
	}
	return nil
}

// Close closes the connection if it is still open
func (c *Connection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Error("failed to close rabbitmq connection", zap.Error(err))
		return err
	}
	c.logger.Info("rabbitmq connection closed")
	return nil
}
