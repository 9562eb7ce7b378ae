package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/anomaly"
	"github.com/septivank/buoy-telemetry/internal/api"
	"github.com/septivank/buoy-telemetry/internal/config"
	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/logging"
	"github.com/septivank/buoy-telemetry/internal/mq"
	"github.com/septivank/buoy-telemetry/internal/observability"
	"github.com/septivank/buoy-telemetry/internal/repository"
	"github.com/septivank/buoy-telemetry/internal/service"
)

// startConsumer consumes the ingest queue when a broker is configured
func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Metrics,
	ingest *service.IngestService,
) error {
	if conn == nil {
		logger.Info("RABBITMQ_URL not set, queue ingestion disabled")
		return nil
	}

	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.IngestQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logging.WithSource(logger, "amqp"),
		Metrics:          metrics,
		MessageProcessor: ingest.HandleDelivery,
		Retryable: func(err error) bool {
			return errors.Is(err, service.ErrStorage)
		},
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting ingest consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("consumer stopped gracefully")
			return nil
		},
	})

	return nil
}

// startHTTPServer runs the API for the lifetime of the app. A listen
// failure shuts the app down.
func startHTTPServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, server *api.Server, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			go func() {
				defer close(done)
				if err := server.Run(ctx); err != nil {
					logger.Error("http server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				logger.Info("http server stopped gracefully")
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return nil
		},
	})
}

// readiness checks the database and, when configured, the broker
type readiness struct {
	repo *repository.Repository
	conn *mq.Connection
}

func (r readiness) Ping(ctx context.Context) error {
	if err := r.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if r.conn != nil {
		if err := r.conn.Ping(ctx); err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
	}
	return nil
}

// ProvideMetrics registers the Prometheus collectors
func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

// ProvideClock supplies the wall clock
func ProvideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL, cfg.Database.AutoMigrate)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.TemperatureSpike, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideMQConnection connects to RabbitMQ, or returns nil when no broker
// is configured.
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if !cfg.RabbitMQ.Enabled() {
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher publishes reading events to the broker, or only logs
// them when none is configured.
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (service.EventPublisher, error) {
	if conn == nil {
		return mq.NewLoggingPublisher(logger), nil
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideIngestService creates a new ingestion service instance
func ProvideIngestService(
	repo *repository.Repository,
	publisher service.EventPublisher,
	detector *anomaly.Detector,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.IngestService {
	return service.NewIngestService(repo, publisher, detector, clock, metrics, cfg.Anomaly.HistorySize, logger)
}

// ProvideQueryService creates a new query service instance
func ProvideQueryService(repo *repository.Repository) *service.QueryService {
	return service.NewQueryService(repo)
}

// ProvideReconciler creates a new reconciler instance
func ProvideReconciler(repo *repository.Repository, metrics *observability.Metrics, logger *zap.Logger) *service.Reconciler {
	return service.NewReconciler(repo, metrics, logger)
}

// ProvideHTTPServer creates the REST API
func ProvideHTTPServer(
	cfg *config.Config,
	ingest *service.IngestService,
	queries *service.QueryService,
	reconciler *service.Reconciler,
	repo *repository.Repository,
	conn *mq.Connection,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *api.Server {
	return api.New(
		api.Config{
			ListenAddr:         cfg.ListenAddr(),
			DefaultLimit:       cfg.API.DefaultLimit,
			MaxLimit:           cfg.API.MaxLimit,
			ReconcileBatchSize: cfg.Reconcile.BatchSize,
		},
		ingest,
		queries,
		reconciler,
		readiness{repo: repo, conn: conn},
		metrics,
		logging.WithSource(logger, "http"),
	)
}
