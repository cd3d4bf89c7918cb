package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "piecework"

// New builds the JSON logger shared by every component. level is a zap level
// name ("debug", "info", "warn", "error"); empty means info.
func New(level string) (*zap.Logger, error) {
	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level != "" {
		if err := atom.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	cfg.EncoderConfig = encoder
	cfg.InitialFields = map[string]any{"service": serviceName}
	if atom.Level() == zapcore.DebugLevel {
		cfg.Sampling = nil
	}

	return cfg.Build()
}

// Must panics when the logger cannot be built.
func Must(logger *zap.Logger, err error) *zap.Logger {
	if err != nil {
		panic(err)
	}
	return logger
}
