// Package observ holds the logging setup shared by every pitchside component.
package observ

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

// NewLogger creates a structured logger based on environment
func NewLogger(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	// Parse level
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build()
}

// ForwardWriter returns a writer that pipes raw output lines into the logger.
// Used to capture stdout/stderr of the supervised prediction service so its
// output lands in the same sink as our own logs.
func ForwardWriter(logger *zap.Logger, name string, level zapcore.Level) io.WriteCloser {
	return &zapio.Writer{
		Log:   logger.Named(name),
		Level: level,
	}
}
