package logging

import (
	"os"

	"go.uber.org/zap"
)

var logger *zap.Logger

func init() {
	if os.Getenv("DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
}

// L returns the process-wide logger.
func L() *zap.Logger {
	return logger
}

// With returns a child logger carrying the given fields.
func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}

// Sync flushes buffered log entries; call on shutdown.
func Sync() {
	_ = logger.Sync()
}
