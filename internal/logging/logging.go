// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the operational (non-audit) logger.
//
// Operational logs describe what the process did: lockouts, storage
// failures, startup configuration. They are rotated and may be pruned. The
// tamper-evident record of who attempted what lives in the audit package.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the operational logger.
type Config struct {
	// Path of the rotated JSON log file. Empty disables the file sink.
	Path string

	// Level is the minimum level for the file sink (debug, info, warn, error).
	Level string

	// MaxSizeMB is the size in megabytes at which the file is rotated.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// MaxAgeDays is the number of days to keep rotated files.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool

	// Console mirrors warnings and errors to stderr.
	Console bool
}

// New returns a logger for cfg. With no file path and no console sink it
// returns a no-op logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
		}
		level = parsed
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	if cfg.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}
	if cfg.Console {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		consoleLevel := zapcore.WarnLevel
		if level > consoleLevel {
			consoleLevel = level
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(os.Stderr),
			consoleLevel,
		))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named("syscallgate"), nil
}
