// Package observability holds process-wide logging for the CLI.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger. It starts as a no-op so
// library consumers and tests that never call InitCLILogger can still
// log safely.
var CLILogger = zap.NewNop()

// InitCLILogger replaces CLILogger with a configured logger.
//
// level accepts the usual zap names (debug, info, warn, error); the
// special value "test" maps to debug. jsonFormat selects JSON output
// over the human console encoder.
func InitCLILogger(level string, jsonFormat bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if !jsonFormat {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// Build only fails on invalid sink paths; the defaults above
		// use stderr, so fall back to a no-op rather than aborting.
		logger = zap.NewNop()
	}
	CLILogger = logger
	return logger
}

// Sync flushes buffered log entries. Safe to call on a no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "test":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
