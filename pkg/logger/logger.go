// Package logger re-exports the eigensdk logging interface so the rest of
// the codebase has a single import for structured logging.
package logger

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

// New creates a zap-backed logger. env is "development" or "production";
// development enables debug level and human-readable output.
func New(env string) (Logger, error) {
	return sdklogging.NewZapLogger(sdklogging.LogLevel(env))
}
