// Package api serves the ingestion endpoint and the dashboard queries over
// HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/observability"
	"github.com/septivank/buoy-telemetry/internal/service"
)

// Ingester accepts gateway messages
type Ingester interface {
	Ingest(ctx context.Context, req service.IngestRequest) (service.IngestResult, error)
}

// Querier reads and deletes stored data
type Querier interface {
	RecentReadings(ctx context.Context, buoyID *int, limit int) ([]db.SensorReading, error)
	RecentNotifications(ctx context.Context, limit int) ([]db.RawReading, error)
	RecentMessages(ctx context.Context, limit int) ([]db.RawReading, error)
	LocatedReadings(ctx context.Context, buoyID *int) ([]db.SensorReading, error)
	Buoys(ctx context.Context) ([]db.BuoySummary, error)
	DeleteReading(ctx context.Context, id int64) error
	DeleteRaw(ctx context.Context, id int64) error
	DeleteBuoy(ctx context.Context, buoyID int) (service.DeleteCounts, error)
}

// Reconciler replays unparsed raw messages
type Reconciler interface {
	Reconcile(ctx context.Context, batchSize int) (service.ReconcileResult, error)
}

// HealthChecker reports whether storage is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP settings
type Config struct {
	ListenAddr         string
	DefaultLimit       int
	MaxLimit           int
	ReconcileBatchSize int
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg        Config
	ingester   Ingester
	queries    Querier
	reconciler Reconciler
	health     HealthChecker
	metrics    *observability.Metrics
	logger     *zap.Logger
	engine     *gin.Engine
}

// New constructs a server with routes and middleware.
func New(
	cfg Config,
	ingester Ingester,
	queries Querier,
	reconciler Reconciler,
	health HealthChecker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(metricsMiddleware(metrics))
	engine.Use(corsMiddleware())

	s := &Server{
		cfg:        cfg,
		ingester:   ingester,
		queries:    queries,
		reconciler: reconciler,
		health:     health,
		metrics:    metrics,
		logger:     logger,
		engine:     engine,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// paths used by the gateway bridge and the v1 dashboard
	s.engine.POST("/message", s.handleIngest)
	s.engine.GET("/messages", s.handleMessages)

	api := s.engine.Group("/api")
	api.POST("/messages", s.handleIngest)
	api.GET("/readings", s.handleReadings)
	api.GET("/readings/path", s.handleReadingPath)
	api.GET("/readings/export.xlsx", s.handleExport)
	api.GET("/notifications", s.handleNotifications)
	api.GET("/buoys", s.handleBuoys)
	api.GET("/buoys/report.pdf", s.handleBuoyReport)
	api.DELETE("/readings/:id", s.handleDeleteReading)
	api.DELETE("/raw/:id", s.handleDeleteRaw)
	api.DELETE("/buoys/:buoyId", s.handleDeleteBuoy)
	api.POST("/admin/reconcile", s.handleReconcile)
}
