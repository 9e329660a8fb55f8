// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"context"

	"github.com/evahq/eva/internal/hook"
)

// Module is the handle of an activated plugin.
type Module interface {
	ID() string
}

// Enabler is implemented by modules that want a callback once their hooks
// are bound.
type Enabler interface {
	OnEnable(ctx context.Context) error
}

// Runtime binds plugin code of one Kind into the running process.
//
// Bind loads the plugin described by d and queues its hook handlers on reg.
// The manager commits reg only when activation succeeds.
type Runtime interface {
	Bind(ctx context.Context, d *Descriptor, reg *hook.Registrar) (Module, error)
	Unbind(ctx context.Context, id string) error
	Close(ctx context.Context) error
}
