// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package lua

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/plugin"
)

// DefaultCallTimeout bounds one call from the host into a plugin, including
// any nested hook handlers it triggers.
const DefaultCallTimeout = 5 * time.Second

// ErrRuntimeClosed is returned by Bind after Close.
var ErrRuntimeClosed = errors.New("lua runtime is closed")

// ErrModuleUnbound is returned by handlers of a module that has been unbound.
var ErrModuleUnbound = errors.New("lua module is unbound")

// Compile-time interface checks.
var (
	_ plugin.Runtime = (*Runtime)(nil)
	_ plugin.Enabler = (*Module)(nil)
)

// Runtime binds Lua plugins. Each plugin keeps one state for its lifetime so
// globals survive between interactions.
//
// Calls into Lua are serialized by a single runtime lock. A call made while
// the lock is already held on the same call chain, such as a handler that
// mutates the interaction and so triggers another Lua handler, re-enters
// without locking.
type Runtime struct {
	factory *StateFactory
	timeout time.Duration
	logger  *slog.Logger

	callMu sync.Mutex

	mu      sync.Mutex
	modules map[string]*Module
	closed  bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCallTimeout sets the per-call timeout. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithLogger sets the logger used for eva.log and handler diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithStateFactory replaces the factory used to create plugin states.
func WithStateFactory(f *StateFactory) Option {
	return func(r *Runtime) {
		r.factory = f
	}
}

// NewRuntime creates a Lua runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		factory: NewStateFactory(),
		timeout: DefaultCallTimeout,
		logger:  slog.Default(),
		modules: make(map[string]*Module),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type heldKey struct{}

// enter acquires the call lock unless ctx already carries it.
func (r *Runtime) enter(ctx context.Context) (context.Context, func()) {
	if held, _ := ctx.Value(heldKey{}).(*Runtime); held == r {
		return ctx, func() {}
	}
	r.callMu.Lock()
	ctx = context.WithValue(ctx, heldKey{}, r)
	cancel := context.CancelFunc(func() {})
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	return ctx, func() {
		cancel()
		r.callMu.Unlock()
	}
}

// Bind implements plugin.Runtime. It runs the plugin's entry point, which
// registers handlers through eva.on.
func (r *Runtime) Bind(ctx context.Context, d *plugin.Descriptor, reg *hook.Registrar) (plugin.Module, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, oops.In("lua").With("plugin", d.ID).Wrap(ErrRuntimeClosed)
	}
	if _, ok := r.modules[d.ID]; ok {
		r.mu.Unlock()
		return nil, oops.In("lua").With("plugin", d.ID).Errorf("plugin %s is already bound", d.ID)
	}
	r.mu.Unlock()

	entry := filepath.Join(d.Dir, d.Manifest.EntryPoint(d.ID))
	code, err := os.ReadFile(filepath.Clean(entry))
	if err != nil {
		return nil, oops.In("lua").With("plugin", d.ID).With("path", entry).Hint("failed to read entry point").Wrap(err)
	}

	L, err := r.factory.NewState(ctx)
	if err != nil {
		return nil, oops.In("lua").With("plugin", d.ID).Wrap(err)
	}

	m := &Module{
		id:      d.ID,
		runtime: r,
		state:   L,
		config:  d.Config,
		reg:     reg,
		logger:  r.logger.With("plugin", d.ID),
	}
	m.install()

	fn, err := L.Load(bytes.NewReader(code), entry)
	if err != nil {
		L.Close()
		return nil, oops.In("lua").With("plugin", d.ID).With("path", entry).Hint("syntax error").Wrap(err)
	}
	if _, _, err := m.call(hook.WithCaller(ctx, d.ID), fn); err != nil {
		L.Close()
		return nil, oops.In("lua").With("plugin", d.ID).With("path", entry).Wrapf(err, "run entry point")
	}

	r.mu.Lock()
	r.modules[d.ID] = m
	r.mu.Unlock()
	return m, nil
}

// Unbind implements plugin.Runtime. Handlers already on the bus become
// no-ops returning ErrModuleUnbound.
func (r *Runtime) Unbind(ctx context.Context, id string) error {
	r.mu.Lock()
	m, ok := r.modules[id]
	delete(r.modules, id)
	r.mu.Unlock()
	if !ok {
		return oops.In("lua").With("plugin", id).Errorf("plugin %s is not bound", id)
	}

	_, release := r.enter(ctx)
	defer release()
	m.close()
	return nil
}

// Close implements plugin.Runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	modules := r.modules
	r.modules = make(map[string]*Module)
	r.mu.Unlock()

	_, release := r.enter(ctx)
	defer release()
	for _, m := range modules {
		m.close()
	}
	return nil
}

// Modules returns the IDs of the bound plugins.
func (r *Runtime) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	return ids
}

// Module is a bound Lua plugin.
type Module struct {
	id      string
	runtime *Runtime
	state   *lua.LState
	config  *plugin.Config
	reg     *hook.Registrar
	logger  *slog.Logger

	// guarded by runtime.callMu
	closed bool
}

// ID implements plugin.Module.
func (m *Module) ID() string {
	return m.id
}

// OnEnable calls the script's global on_enable function when it defines one.
// Raising an error, or returning false and a message, fails the activation.
func (m *Module) OnEnable(ctx context.Context) error {
	fn := m.state.GetGlobal("on_enable")
	if fn.Type() != lua.LTFunction {
		return nil
	}
	ok, msg, err := m.call(ctx, fn)
	if err != nil {
		return oops.In("lua").With("plugin", m.id).Wrapf(err, "on_enable")
	}
	if ok == lua.LFalse {
		return oops.In("lua").With("plugin", m.id).Errorf("on_enable: %s", lua.LVAsString(msg))
	}
	return nil
}

// handler adapts a Lua function to a hook handler.
func (m *Module) handler(name string, fn *lua.LFunction) hook.Handler {
	return func(ctx context.Context, payload any) error {
		if _, _, err := m.call(ctx, fn, m.toLua(payload)); err != nil {
			return oops.In("lua").With("plugin", m.id).With("hook", name).Wrap(err)
		}
		return nil
	}
}

// call runs fn with args under the runtime lock and returns its first two
// results.
func (m *Module) call(ctx context.Context, fn lua.LValue, args ...lua.LValue) (lua.LValue, lua.LValue, error) {
	ctx, release := m.runtime.enter(ctx)
	defer release()

	if m.closed {
		return lua.LNil, lua.LNil, ErrModuleUnbound
	}

	L := m.state
	prev := L.Context()
	L.SetContext(ctx)
	defer func() {
		if prev != nil {
			L.SetContext(prev)
		} else {
			L.RemoveContext()
		}
	}()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, args...); err != nil {
		return lua.LNil, lua.LNil, err
	}
	first, second := L.Get(-2), L.Get(-1)
	L.Pop(2)
	return first, second, nil
}

func (m *Module) close() {
	if m.closed {
		return
	}
	m.closed = true
	m.state.Close()
}
