// Package logging installs the process-wide zap logger.
package logging

import (
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds a JSON (production) or console (development) logger at level,
// installs it as the zap global and returns a cleanup that flushes it.
func Init(level, format string) (*zap.Logger, func()) {
	var cfg zap.Config
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"logger init failed\" err=%v", err)
	}
	zap.ReplaceGlobals(logger)
	restoreStdLog := zap.RedirectStdLog(logger)

	cleanup := func() {
		restoreStdLog()
		if err := logger.Sync(); err != nil && !isIgnorableSyncError(err) {
			log.Printf("level=warn component=logging msg=\"logger sync failed\" err=%v", err)
		}
	}
	return logger, cleanup
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stderr: invalid argument")
}
