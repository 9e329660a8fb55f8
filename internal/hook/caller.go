// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package hook

import "context"

// Core is the owner recorded for registrations and mutations made by the
// runtime itself rather than by a plugin.
const Core = "core"

type callerKey struct{}

// WithCaller returns a context that identifies owner as the plugin on whose
// behalf code is running.
func WithCaller(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, callerKey{}, owner)
}

// CallerFrom returns the plugin recorded by WithCaller, or Core when none is.
func CallerFrom(ctx context.Context) string {
	if ctx == nil {
		return Core
	}
	if owner, ok := ctx.Value(callerKey{}).(string); ok && owner != "" {
		return owner
	}
	return Core
}
