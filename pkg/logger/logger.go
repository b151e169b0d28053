// Package logger holds the process-wide zap logger used by every component.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the shared logger. It is a no-op logger until Init is called so
// packages can log from tests without initialising anything.
var Log = zap.NewNop()

// Init builds the shared logger. With a log file the production (JSON)
// encoder is used and output is teed to stdout; otherwise the development
// console encoder is used.
func Init(level string, logFile string) error {
	var config zap.Config

	if logFile != "" {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{logFile, "stdout"}
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	built, err := config.Build()
	if err != nil {
		return err
	}

	Log = built
	return nil
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithTrace returns a child logger tagged with a sync trace identifier.
func WithTrace(traceID string) *zap.Logger {
	return Log.With(zap.String("traceId", traceID))
}

func Sync() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}
