package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Pool is an alias for pgxpool.Pool
type Pool = pgxpool.Pool

// NewPool creates a new PostgreSQL connection pool whose connectivity is
// checked, and schema optionally applied, when the fx app starts.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, databaseURL string, autoMigrate bool) (*pgxpool.Pool, error) {
	logger.Info("initializing database connection pool")

	pool, err := newPool(databaseURL)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ping(ctx, logger, pool, databaseURL); err != nil {
				return err
			}
			if autoMigrate {
				return Migrate(ctx, logger, pool)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("database connection closed")
			return nil
		},
	})

	return pool, nil
}

// Open creates and pings a pool outside of an fx application. The caller
// must Close it.
func Open(ctx context.Context, logger *zap.Logger, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := newPool(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := ping(ctx, logger, pool, databaseURL); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, logger *zap.Logger, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("[DATABASE] failed to apply schema: %w", err)
	}
	logger.Info("database schema applied")
	return nil
}

func newPool(databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}
	return pool, nil
}

func ping(ctx context.Context, logger *zap.Logger, pool *pgxpool.Pool, databaseURL string) error {
	logger.Info("attempting to connect to database...")
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", zap.Error(err), zap.String("url", maskPassword(databaseURL)))
		return fmt.Errorf("[DATABASE CONNECTION FAILED] cannot reach database. Please check: 1) Database is running, 2) DATABASE_URL is correct, 3) Network/firewall allows connection. Error: %w", err)
	}
	logger.Info("database connection established successfully")
	return nil
}

// maskPassword masks the password in database URL for logging
func maskPassword(url string) string {
	if len(url) == 0 {
		return "<empty>"
	}
	// Simple masking - find password part between : and @
	start := 0
	for i := 0; i < len(url); i++ {
		if url[i] == ':' && i > 0 && url[i-1] != '/' {
			start = i + 1
		}
		if url[i] == '@' && start > 0 {
			return url[:start] + "***" + url[i:]
		}
	}
	return url
}
