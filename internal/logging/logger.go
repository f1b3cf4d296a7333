// Package logging builds the process logger. Components accept a
// *zap.Logger directly and fall back to a no-op logger when given nil.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the default logger: JSON to stderr, RFC3339Nano timestamps.
// Level accepts debug/info/warn/error; anything else means info.
func New(level string) *zap.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter creates a logger writing to the given writer. Used by
// tests to capture output.
func NewWithWriter(level string, w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		ParseLevel(level),
	)
	return zap.New(core)
}

// Or returns l unless it is nil, in which case a no-op logger is returned.
func Or(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}
