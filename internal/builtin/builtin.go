// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package builtin holds the plugins compiled into the eva binary.
package builtin

import "github.com/evahq/eva/internal/plugin"

// All returns every compiled-in plugin.
func All() []plugin.Builtin {
	return []plugin.Builtin{
		Fallback(),
	}
}
