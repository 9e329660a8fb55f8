// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evahq/eva/internal/hook"
)

func TestLoggerHook(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, hook.LoggerDebug},
		{slog.LevelInfo, hook.LoggerInfo},
		{slog.LevelWarn, hook.LoggerWarning},
		{slog.LevelError, hook.LoggerError},
		{slog.LevelError + 4, hook.LoggerFatal},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, LoggerHook(tt.level))
		})
	}
}

func TestHookHandler_FiresLevelHook(t *testing.T) {
	bus := hook.NewBus()
	var entries []*hook.LogEntry
	bus.Register("auditor", hook.LoggerWarning, func(_ context.Context, payload any) error {
		entries = append(entries, payload.(*hook.LogEntry))
		return nil
	})

	var buf bytes.Buffer
	base := Setup("eva", "1.0.0", "json", "info", &buf)
	logger := slog.New(NewHookHandler(base.Handler(), bus)).
		With("component", "director").
		WithGroup("req")

	logger.Info("not a warning")
	logger.WarnContext(hook.WithCaller(context.Background(), "weather"), "slow answer", "ms", 1200)

	require.Len(t, entries, 1)
	got := entries[0]
	assert.Equal(t, "warning", got.Level)
	assert.Equal(t, "slow answer", got.Message)
	assert.Equal(t, "weather", got.Plugin)
	assert.Equal(t, map[string]any{"component": "director", "req.ms": int64(1200)}, got.Attrs)

	// The wrapped handler still writes every record.
	assert.Contains(t, buf.String(), "not a warning")
	assert.Contains(t, buf.String(), "slow answer")
}

func TestHookHandler_RespectsLevel(t *testing.T) {
	bus := hook.NewBus()
	fired := 0
	bus.Register("auditor", hook.LoggerDebug, func(context.Context, any) error {
		fired++
		return nil
	})

	logger := slog.New(NewHookHandler(Setup("eva", "1.0.0", "json", "info", &bytes.Buffer{}).Handler(), bus))
	logger.Debug("hidden")
	assert.Equal(t, 0, fired)
}

func TestHookHandler_NoReentry(t *testing.T) {
	bus := hook.NewBus()
	var buf bytes.Buffer
	logger := slog.New(NewHookHandler(Setup("eva", "1.0.0", "text", "debug", &buf).Handler(), bus))

	calls := 0
	bus.Register("echoer", hook.LoggerInfo, func(ctx context.Context, payload any) error {
		calls++
		logger.InfoContext(ctx, "seen: "+payload.(*hook.LogEntry).Message)
		return nil
	})

	logger.Info("hello")

	assert.Equal(t, 1, calls)
	assert.Contains(t, buf.String(), "seen: hello")
}

func TestHookHandler_NilBus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHookHandler(Setup("eva", "1.0.0", "json", "info", &buf).Handler(), nil))
	logger.Info("plain")
	assert.Contains(t, buf.String(), "plain")
}
