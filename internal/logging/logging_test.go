// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/rigchat/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		enabled bool
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, true, false},
		{"INFO", zapcore.InfoLevel, true, false},
		{"warn", zapcore.WarnLevel, true, false},
		{"", zapcore.WarnLevel, true, false},
		{"off", zapcore.InvalidLevel, false, false},
		{"chatty", zapcore.InvalidLevel, false, true},
	}
	for _, tt := range tests {
		got, enabled, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want || enabled != tt.enabled {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v, %v", tt.in, got, enabled, tt.want, tt.enabled)
		}
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(config.LogConfig{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("persist message failed", zap.String("session", "s1"))
	require.NoError(t, closeFn())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "persist message failed")
	assert.Contains(t, out, `"session": "s1"`)
}

func TestNew_Off(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LogConfig{Level: "off"}, &buf)
	require.NoError(t, err)

	logger.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rigchat.log")
	logger, closeFn, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, nil)
	require.NoError(t, err)

	logger.Info("turn complete", zap.Int("reply_len", 9))
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "turn complete", entry["msg"])
	assert.Equal(t, float64(9), entry["reply_len"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"}, nil)
	assert.Error(t, err)
}
