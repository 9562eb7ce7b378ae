package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	LogLevel    string
	HTTPPort    int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	API         APIConfig
	Anomaly     AnomalyConfig
	Reconcile   ReconcileConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
}

// RabbitMQConfig holds RabbitMQ connection and queue settings.
// An empty URL disables the queue transport; HTTP ingestion still works.
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	EventsExchange   string
	DLQQueue         string
	PrefetchCount    int
}

// Enabled reports whether a broker is configured
func (c RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

// APIConfig holds query defaults for the dashboard API
type APIConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// AnomalyConfig holds anomaly flagging settings
type AnomalyConfig struct {
	TemperatureSpike          float64
	MinDataPointsForDetection int
	HistorySize               int
}

// ReconcileConfig holds replay settings
type ReconcileConfig struct {
	BatchSize int
}

// LoadEnvFile loads the first .env found in the working directory or up to
// two parents. It returns the path loaded, or "" when none was found, which
// is normal inside containers.
func LoadEnvFile() string {
	candidates := []string{".env", filepath.Join("..", "..", ".env")}

	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		candidates = append(candidates,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			abs, _ := filepath.Abs(path)
			return abs
		}
	}
	return ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "buoy-telemetry"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPPort:    getEnvAsInt("HTTP_PORT", 3000),
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			AutoMigrate: getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "buoy-telemetry.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "buoy-telemetry.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "buoy.sms.raw"),
			EventsExchange:   getEnv("RABBITMQ_EVENTS_EXCHANGE", "buoy-telemetry.events.exchange"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "buoy-telemetry.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		API: APIConfig{
			DefaultLimit: getEnvAsInt("API_DEFAULT_LIMIT", 50),
			MaxLimit:     getEnvAsInt("API_MAX_LIMIT", 1000),
		},
		Anomaly: AnomalyConfig{
			TemperatureSpike:          getEnvAsFloat("ANOMALY_TEMPERATURE_SPIKE", 5.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
			HistorySize:               getEnvAsInt("ANOMALY_HISTORY_SIZE", 10),
		},
		Reconcile: ReconcileConfig{
			BatchSize: getEnvAsInt("RECONCILE_BATCH_SIZE", 200),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", cfg.HTTPPort)
	}
	if cfg.API.DefaultLimit <= 0 || cfg.API.MaxLimit < cfg.API.DefaultLimit {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT must be positive and not exceed API_MAX_LIMIT")
	}
	if cfg.Reconcile.BatchSize <= 0 {
		return nil, fmt.Errorf("RECONCILE_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
