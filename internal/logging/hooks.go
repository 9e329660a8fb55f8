// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package logging

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"github.com/evahq/eva/internal/hook"
)

type inLoggerHookKey struct{}

// hookHandler forwards records to the wrapped handler, then fires the logger
// hook for the record level with a *hook.LogEntry payload. Records logged
// with the context a logger hook handler received do not fire hooks again.
type hookHandler struct {
	handler slog.Handler
	bus     hook.Dispatcher
	attrs   map[string]any
	prefix  string
}

// NewHookHandler wraps next so that every handled record also fires
// logger-debug, logger-info, logger-warning, logger-error or logger-fatal
// on bus.
func NewHookHandler(next slog.Handler, bus hook.Dispatcher) slog.Handler {
	return &hookHandler{handler: next, bus: bus}
}

// LoggerHook returns the logger hook fired for level. Levels above error
// map to logger-fatal.
func LoggerHook(level slog.Level) string {
	switch {
	case level > slog.LevelError:
		return hook.LoggerFatal
	case level >= slog.LevelError:
		return hook.LoggerError
	case level >= slog.LevelWarn:
		return hook.LoggerWarning
	case level >= slog.LevelInfo:
		return hook.LoggerInfo
	default:
		return hook.LoggerDebug
	}
}

// Handle implements slog.Handler.
func (h *hookHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.handler.Handle(ctx, r)
	if h.bus == nil || ctx.Value(inLoggerHookKey{}) != nil {
		//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
		return err
	}

	entry := &hook.LogEntry{
		Level:   strings.TrimPrefix(LoggerHook(r.Level), "logger-"),
		Message: r.Message,
		Attrs:   make(map[string]any, len(h.attrs)+r.NumAttrs()),
		Plugin:  hook.CallerFrom(ctx),
	}
	maps.Copy(entry.Attrs, h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		flatten(entry.Attrs, h.prefix, a)
		return true
	})

	h.bus.Trigger(context.WithValue(ctx, inLoggerHookKey{}, true), LoggerHook(r.Level), entry)
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return err
}

// Enabled implements slog.Handler.
func (h *hookHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs implements slog.Handler.
func (h *hookHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := maps.Clone(h.attrs)
	if bound == nil {
		bound = make(map[string]any, len(attrs))
	}
	for _, a := range attrs {
		flatten(bound, h.prefix, a)
	}
	return &hookHandler{
		handler: h.handler.WithAttrs(attrs),
		bus:     h.bus,
		attrs:   bound,
		prefix:  h.prefix,
	}
}

// WithGroup implements slog.Handler.
func (h *hookHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &hookHandler{
		handler: h.handler.WithGroup(name),
		bus:     h.bus,
		attrs:   h.attrs,
		prefix:  h.prefix + name + ".",
	}
}

// flatten stores a in dst under its dotted group path.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			flatten(dst, prefix, ga)
		}
		return
	}
	dst[prefix+a.Key] = a.Value.Any()
}
