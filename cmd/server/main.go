package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/config"
)

func main() {
	// Load .env file - flexible path for both Linux (pods/containers) and Windows
	if path := config.LoadEnvFile(); path != "" {
		fmt.Printf("Loaded environment from: %s\n", path)
	} else {
		fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
	}

	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			ProvideMetrics,
			ProvideClock,
			ProvideDBPool,
			ProvideRepository,
			ProvideAnomalyDetector,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideIngestService,
			ProvideQueryService,
			ProvideReconciler,
			ProvideHTTPServer,
		),
		fx.Invoke(startConsumer, startHTTPServer),
	)

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create a temporary logger for startup error messages
	tempLogger, _ := newLogger(&config.Config{ServiceName: "buoy-telemetry", LogLevel: "info"})
	tempLogger.Info("starting application...", zap.String("timeout", "30s"))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			tempLogger.Error("APPLICATION START TIMEOUT: Failed to start within 30 seconds. This usually means a dependency (Database or RabbitMQ) is not accessible. Check the error messages above for specific connection failures.")
		}
		tempLogger.Fatal("application failed to start", zap.Error(err))
	}

	// Wait for interrupt signal or a fatal server error
	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Println("error stopping app:", err)
	}
}
