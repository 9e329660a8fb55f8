// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package hook

// LogEntry is the payload of the logger hooks.
type LogEntry struct {
	Level   string
	Message string
	// Attrs holds the record attributes, groups flattened with dots.
	Attrs map[string]any
	// Plugin is the plugin that logged the record, or Core.
	Plugin string
}
