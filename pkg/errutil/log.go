// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package errutil holds helpers for logging and inspecting oops errors.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. For oops errors the code, context and
// hint are logged as separate attributes.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext is LogError with a context, so handlers can attach trace
// and plugin attributes.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}

// Attrs returns slog key/value pairs describing err.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	if hint := oopsErr.Hint(); hint != "" {
		attrs = append(attrs, "hint", hint)
	}
	return attrs
}

// Code returns the oops code of err, or "" when it has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}

// HasCode reports whether err carries code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}
