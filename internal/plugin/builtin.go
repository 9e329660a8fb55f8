// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/evahq/eva/internal/hook"
)

// Plugin is implemented by plugins compiled into the binary.
type Plugin interface {
	Register(r *hook.Registrar)
}

// Factory creates a compiled-in plugin from its configuration.
type Factory func(cfg *Config) (Plugin, error)

// Builtin declares a compiled-in plugin.
type Builtin struct {
	ID       string
	Manifest Manifest
	// Schema is an optional JSON Schema for the plugin's configuration.
	Schema []byte
	New    Factory
}

// BuiltinRuntime binds compiled-in plugins.
type BuiltinRuntime struct {
	mu        sync.Mutex
	factories map[string]Factory
	bound     map[string]Plugin
}

// NewBuiltinRuntime creates a runtime for the given builtins.
func NewBuiltinRuntime(builtins ...Builtin) *BuiltinRuntime {
	r := &BuiltinRuntime{
		factories: make(map[string]Factory, len(builtins)),
		bound:     make(map[string]Plugin),
	}
	for _, b := range builtins {
		r.factories[b.ID] = b.New
	}
	return r
}

// Bind implements Runtime.
func (r *BuiltinRuntime) Bind(_ context.Context, d *Descriptor, reg *hook.Registrar) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[d.ID]
	if !ok || factory == nil {
		return nil, oops.In("builtin").With("plugin", d.ID).Errorf("no compiled-in plugin named %s", d.ID)
	}
	p, err := factory(d.Config)
	if err != nil {
		return nil, oops.In("builtin").With("plugin", d.ID).Wrapf(err, "create plugin")
	}
	p.Register(reg)
	r.bound[d.ID] = p
	return &builtinModule{id: d.ID, plugin: p}, nil
}

// Unbind implements Runtime.
func (r *BuiltinRuntime) Unbind(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bound, id)
	return nil
}

// Close implements Runtime.
func (r *BuiltinRuntime) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound = make(map[string]Plugin)
	return nil
}

type builtinModule struct {
	id     string
	plugin Plugin
}

func (m *builtinModule) ID() string {
	return m.id
}

func (m *builtinModule) OnEnable(ctx context.Context) error {
	if e, ok := m.plugin.(Enabler); ok {
		return e.OnEnable(ctx)
	}
	return nil
}
