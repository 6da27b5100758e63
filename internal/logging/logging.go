// Package logging builds the process logger: human-readable lines on
// stderr plus an optional rotating JSON file.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File enables a rotating JSON log at this path.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Verbose forces debug level.
	Verbose bool
	// Stderr receives console output. Defaults to os.Stderr.
	Stderr io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  20,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ParseLevel maps a config string to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// New returns the logger and a cleanup func that flushes and closes the
// log file.
func New(cfg Config) (*zap.Logger, func(), error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	console := encoderConfig()
	console.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	console.ConsoleSeparator = " - "
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(console), zapcore.Lock(zapcore.AddSync(stderr)), level),
	}

	var rotator *lumberjack.Logger
	if path := strings.TrimSpace(cfg.File); path != "" {
		def := DefaultConfig()
		rotator = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    positive(cfg.MaxSizeMB, def.MaxSizeMB),
			MaxBackups: positive(cfg.MaxBackups, def.MaxBackups),
			MaxAge:     positive(cfg.MaxAgeDays, def.MaxAgeDays),
			Compress:   cfg.Compress,
		}
		fileEnc := encoderConfig()
		fileEnc.EncodeLevel = zapcore.LowercaseLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.DPanicLevel)).Named("aicli")
	cleanup := func() {
		_ = logger.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return logger, cleanup, nil
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
