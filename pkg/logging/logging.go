// Package logging builds the process logger.
package logging

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logs go to stderr so stdout carries only command output
var outputPaths = []string{"stderr"}

// New creates the run logger. Every entry carries the returned run id.
// verbose enables debug entries; jsonOutput switches from console to json encoding.
func New(verbose, jsonOutput bool) (*zap.Logger, string, error) {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	encoding := "console"
	encodeLevel := zapcore.CapitalColorLevelEncoder
	if jsonOutput {
		encoding = "json"
		encodeLevel = zapcore.LowercaseLevelEncoder
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if !verbose {
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, "", err
	}

	runID := uuid.NewString()
	return logger.With(zap.String("run_id", runID)), runID, nil
}
