package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/observability"
)

const defaultHandlerTimeout = 30 * time.Second

// MessageHandler processes one delivery body. contentType is the AMQP
// content type set by the publisher. A returned error dead-letters the
// delivery unless the consumer treats it as retryable.
type MessageHandler func(ctx context.Context, contentType string, body []byte) error

// Acknowledger is the subset of amqp.Delivery used to settle a message.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Connection       *Connection
	Queue            string
	DLQQueue         string
	Exchange         string
	RoutingKey       string
	PrefetchCount    int
	HandlerTimeout   time.Duration
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	MessageProcessor MessageHandler
	// Retryable reports handler errors worth one requeue before the
	// delivery is dead-lettered. Nil dead-letters every failure.
	Retryable func(error) bool
}

// Consumer reads gateway messages from the ingest queue
type Consumer struct {
	channel   *amqp.Channel
	queue     string
	prefetch  int
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	handle    MessageHandler
	retryable func(error) bool
	wg        sync.WaitGroup
}

// NewConsumer opens a channel and declares the ingest topology
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	ch, err := cfg.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareIngestTopology(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}

	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}

	return &Consumer{
		channel:   ch,
		queue:     cfg.Queue,
		prefetch:  cfg.PrefetchCount,
		timeout:   timeout,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		handle:    cfg.MessageProcessor,
		retryable: cfg.Retryable,
	}, nil
}

// declareIngestTopology sets QoS and declares the exchange, the dead
// letter queue and the ingest queue bound to the routing key.
func declareIngestTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Rejected deliveries go to the DLQ through the default exchange
	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQQueue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Start begins consuming until ctx is cancelled or the channel closes.
// Deliveries are handled one at a time.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Int("prefetch", c.prefetch),
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("consumer context cancelled, stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("delivery channel closed")
					return
				}
				c.process(ctx, msg, msg.ContentType, msg.MessageId, msg.Redelivered, msg.Body)
			}
		}
	}()

	return nil
}

func (c *Consumer) process(ctx context.Context, ack Acknowledger, contentType, messageID string, redelivered bool, body []byte) {
	msgLogger := c.logger.With(
		zap.String("message_id", messageID),
		zap.Bool("redelivered", redelivered),
	)
	msgLogger.Debug("received delivery",
		zap.String("content_type", contentType),
		zap.Int("body_size", len(body)),
	)

	handlerCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.handle(handlerCtx, contentType, body); err != nil {
		if !redelivered && c.retryable != nil && c.retryable(err) {
			msgLogger.Warn("failed to process delivery, requeueing", zap.Error(err))
			if nackErr := ack.Nack(false, true); nackErr != nil {
				msgLogger.Error("failed to NACK delivery", zap.Error(nackErr))
			}
			c.count("requeue")
			return
		}

		msgLogger.Error("failed to process delivery, dead-lettering", zap.Error(err))

		// requeue=false routes the delivery to the DLQ
		if nackErr := ack.Nack(false, false); nackErr != nil {
			msgLogger.Error("failed to NACK delivery", zap.Error(nackErr))
		}
		c.count("nack")
		return
	}

	if ackErr := ack.Ack(false); ackErr != nil {
		msgLogger.Error("failed to ACK delivery", zap.Error(ackErr))
		return
	}
	c.count("ack")
}

func (c *Consumer) count(result string) {
	if c.metrics != nil {
		c.metrics.Deliveries.WithLabelValues(result).Inc()
	}
}

// Close waits for the delivery in progress and closes the channel. Cancel
// the Start context first.
func (c *Consumer) Close() error {
	c.wg.Wait()
	if c.channel != nil {
		return c.channel.Close()
	}
	return nil
}
