// Package zaplogging provides a zap-backed sprintf logger that plugs into
// logging.NewLogger through logging.LogFuncs.
package zaplogging

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-proctree/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type SprintfLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewSprintfLogger creates a logger writing to stderr.
// level is one of debug, info, warn, error; jsonFormat selects the JSON encoder.
func NewSprintfLogger(level string, jsonFormat bool) (*SprintfLogger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	if !jsonFormat {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.DisableStacktrace = true

	base, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return &SprintfLogger{
		sugar: base.Sugar(),
		level: config.Level,
	}, nil
}

// NewSprintfLoggerFromCore wraps an existing core; used by tests with zaptest/observer
func NewSprintfLoggerFromCore(core zapcore.Core) *SprintfLogger {
	return &SprintfLogger{
		sugar: zap.New(core, zap.AddCallerSkip(2)).Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

// ParseLevel maps configuration level names onto zap levels
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func (l *SprintfLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *SprintfLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *SprintfLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *SprintfLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// LogFuncs exposes the logger for logging.NewLogger
func (l *SprintfLogger) LogFuncs() logging.LogFuncs {
	return logging.LogFuncs{
		Debugf: l.Debugf,
		Infof:  l.Infof,
		Warnf:  l.Warnf,
		Errorf: l.Errorf,
	}
}

// Sync flushes buffered entries; errors from syncing stderr are ignored
func (l *SprintfLogger) Sync() {
	_ = l.sugar.Sync()
}
