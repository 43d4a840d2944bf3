// Package logger provides structured logging functionality using zap.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance.
var Log = zap.NewNop()

// New builds a logger with the specified level, format and output.
// Level should be one of: debug, info, warn, error
// Format should be one of: json, text
// Output is stdout, stderr or a file path; empty means stderr.
func New(level, format, output string) (*zap.Logger, error) {
	var cfg zap.Config

	// Select config based on format
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "text", "":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	// Parse and set log level
	zapLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	if output == "" {
		output = "stderr"
	}
	cfg.OutputPaths = []string{output}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Init initializes the global logger.
func Init(level, format, output string) error {
	logger, err := New(level, format, output)
	if err != nil {
		return err
	}
	Log = logger
	return nil
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Sync flushes any buffered log entries.
// Should be called before application exit.
func Sync() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}
