// Command reconcile re-parses stored raw messages that have no structured
// reading and stores what it recovers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/config"
	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/logging"
	"github.com/septivank/buoy-telemetry/internal/observability"
	"github.com/septivank/buoy-telemetry/internal/repository"
	"github.com/septivank/buoy-telemetry/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reconcile:", err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	batchSize := flag.Int("batch", cfg.Reconcile.BatchSize, "raw messages fetched per page")
	afterID := flag.Int64("after", 0, "only replay raw messages with a greater id")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.ServiceName+"-reconcile", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.Open(ctx, logger, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	reconciler := service.NewReconciler(
		repository.NewRepository(pool),
		observability.NewMetrics(),
		logger,
	)

	result, err := reconciler.ReconcileFrom(ctx, *afterID, *batchSize)
	if err != nil {
		logger.Error("reconcile stopped early",
			zap.Error(err),
			zap.Int64("resume_after", result.LastRawID),
		)
		return err
	}

	fmt.Printf("scanned=%d recovered=%d unparseable=%d last_raw_id=%d\n",
		result.Scanned, result.Recovered, result.Unparseable, result.LastRawID)
	return nil
}
