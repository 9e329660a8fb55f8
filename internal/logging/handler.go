// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and the plugin on whose behalf code runs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"

	"github.com/evahq/eva/internal/hook"
)

// contextHandler wraps a slog.Handler to add service, trace and plugin
// attributes.
type contextHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds the context attributes to the log record.
func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	if caller := hook.CallerFrom(ctx); caller != hook.Core {
		r.AddAttrs(slog.String("plugin", caller))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{
		handler: h.handler.WithAttrs(attrs),
		service: h.service,
		version: h.version,
	}
}

// WithGroup returns a new handler with the given group.
func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// ParseLevel converts debug, info, warn or error to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return slog.LevelInfo, oops.In("logging").With("level", level).Wrapf(err, "parse log level")
	}
	return lvl, nil
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// level: see ParseLevel; unknown levels log at info.
// If w is nil, writes to os.Stderr.
func Setup(service, version, format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var baseHandler slog.Handler
	if format == "text" {
		baseHandler = slog.NewTextHandler(w, opts)
	} else {
		baseHandler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&contextHandler{
		handler: baseHandler,
		service: service,
		version: version,
	})
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format, level string) *slog.Logger {
	logger := Setup(service, version, format, level, nil)
	slog.SetDefault(logger)
	return logger
}
