// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger used across rigchat.
//
// With a log file configured, JSON lines go to a size-rotated file. Without
// one, console-encoded lines go to stderr, which in the REPL means only
// warnings and errors by default.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jeranaias/rigchat/internal/config"
)

// ParseLevel maps a config level name to a zap level. "off" reports
// ok=false.
func ParseLevel(name string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "off":
		return zapcore.InvalidLevel, false, nil
	case "":
		return zapcore.WarnLevel, true, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return zapcore.InvalidLevel, false, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, true, nil
}

// New builds a logger from cfg. Console output goes to stderr, or to w when
// non-nil. The returned close function flushes and releases the log file.
func New(cfg config.LogConfig, w io.Writer) (*zap.Logger, func() error, error) {
	noop := func() error { return nil }

	lvl, enabled, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, noop, err
	}
	if !enabled {
		return zap.NewNop(), noop, nil
	}

	if cfg.File == "" {
		if w == nil {
			w = os.Stderr
		}
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), lvl)
		logger := zap.New(core)
		return logger, func() error { _ = logger.Sync(); return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, noop, fmt.Errorf("create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), lvl)
	logger := zap.New(core, zap.AddCaller())

	closeFn := func() error {
		_ = logger.Sync()
		return rotator.Close()
	}
	return logger, closeFn, nil
}

// Timed logs the duration of an operation at debug level:
//
//	defer logging.Timed(logger, "list sessions")()
func Timed(logger *zap.Logger, name string) func() {
	start := time.Now()
	return func() {
		logger.Debug("timed", zap.String("op", name), zap.Duration("duration", time.Since(start)))
	}
}
