// Package logging builds the service's zap loggers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger creates a JSON production logger tagged with the service name.
// level is a zap level name such as "debug" or "warn".
func NewLogger(serviceName, level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	config := zap.NewProductionConfig()
	config.Level = atomicLevel
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	return config.Build()
}

// WithRequestID returns a logger with request_id field
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// WithSource tags a logger with the transport a message arrived on
func WithSource(logger *zap.Logger, source string) *zap.Logger {
	return logger.With(zap.String("source", source))
}
