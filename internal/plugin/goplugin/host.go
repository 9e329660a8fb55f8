// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package goplugin runs binary plugins as child processes using HashiCorp's
// go-plugin over gRPC.
package goplugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/pkg/pluginsdk"
)

// DefaultEventTimeout is the default timeout for one call into a plugin.
const DefaultEventTimeout = 5 * time.Second

// Sentinel errors for programmatic error checking.
var (
	// ErrRuntimeClosed is returned when binding after Close.
	ErrRuntimeClosed = errors.New("binary runtime is closed")
	// ErrPluginNotBound is returned when operating on a plugin that isn't bound.
	ErrPluginNotBound = errors.New("plugin not bound")
	// ErrPluginAlreadyBound is returned when binding a plugin twice.
	ErrPluginAlreadyBound = errors.New("plugin already bound")
)

// Compile-time interface checks.
var (
	_ plugin.Runtime = (*Runtime)(nil)
	_ plugin.Enabler = (*module)(nil)
	_ Conn           = (*pluginsdk.Client)(nil)
)

// Conn is the host's view of a running plugin process.
type Conn interface {
	Hooks(ctx context.Context) ([]string, error)
	HandleEvent(ctx context.Context, event pluginsdk.Event) (pluginsdk.Result, error)
	Enable(ctx context.Context) error
}

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct {
	// Logger receives the plugin process output. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  pluginsdk.HandshakeConfig,
		Plugins:          pluginsdk.PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath is the entry point of a discovered plugin
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		SyncStdout:       slogWriter{logger: logger, stream: "stdout"},
		SyncStderr:       slogWriter{logger: logger, stream: "stderr"},
	})
}

// Runtime binds binary plugins.
type Runtime struct {
	clientFactory ClientFactory
	timeout       time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex
	plugins map[string]*module
	closed  bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClientFactory replaces the go-plugin client factory.
func WithClientFactory(f ClientFactory) Option {
	return func(r *Runtime) {
		r.clientFactory = f
	}
}

// WithEventTimeout sets the timeout of each call into a plugin.
func WithEventTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a binary plugin runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		timeout: DefaultEventTimeout,
		logger:  slog.Default(),
		plugins: make(map[string]*module),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clientFactory == nil {
		r.clientFactory = &DefaultClientFactory{Logger: r.logger}
	}
	return r
}

// Bind implements plugin.Runtime. It starts the plugin process, asks it for
// its hooks and queues one handler per matching hook name. Hook patterns
// from the descriptor are merged with those the plugin reports.
func (r *Runtime) Bind(ctx context.Context, d *plugin.Descriptor, reg *hook.Registrar) (plugin.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errb := oops.In("goplugin").With("plugin", d.ID)
	if r.closed {
		return nil, errb.Wrap(ErrRuntimeClosed)
	}
	if _, ok := r.plugins[d.ID]; ok {
		return nil, errb.Wrap(ErrPluginAlreadyBound)
	}

	execPath := filepath.Join(d.Dir, d.Manifest.EntryPoint(d.ID))
	if _, err := os.Stat(execPath); err != nil {
		return nil, errb.With("path", execPath).Hint("cannot access plugin executable").Wrap(err)
	}

	client := r.clientFactory.NewClient(execPath)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, errb.Wrapf(err, "connect to plugin")
	}

	raw, err := rpcClient.Dispense(pluginsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, errb.Wrapf(err, "dispense plugin")
	}

	conn, ok := raw.(Conn)
	if !ok {
		client.Kill()
		return nil, errb.Errorf("plugin %s does not implement the Eva plugin service", d.ID)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	reported, err := conn.Hooks(callCtx)
	cancel()
	if err != nil {
		client.Kill()
		return nil, errb.Wrapf(err, "list hooks")
	}

	patterns := append(append([]string{}, d.Manifest.Hooks...), reported...)
	matcher, err := hook.NewMatcher(patterns...)
	if err != nil {
		client.Kill()
		return nil, errb.Wrapf(err, "invalid hook pattern")
	}

	m := &module{
		id:      d.ID,
		client:  client,
		conn:    conn,
		timeout: r.timeout,
		logger:  r.logger.With("plugin", d.ID),
	}
	names := matcher.Expand(hook.Names())
	if len(names) == 0 {
		m.logger.Warn("binary plugin subscribes to no known hooks", "patterns", patterns)
	}
	for _, name := range names {
		reg.On(name, m.handler(name))
	}
	m.hooks = names
	m.logger.Debug("binary plugin bound", "hooks", names)

	r.plugins[d.ID] = m
	return m, nil
}

// Unbind implements plugin.Runtime. It kills the plugin process.
func (r *Runtime) Unbind(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.plugins[id]
	if !ok {
		return oops.In("goplugin").With("plugin", id).Wrap(ErrPluginNotBound)
	}
	m.kill()
	delete(r.plugins, id)
	return nil
}

// Close implements plugin.Runtime. It kills every plugin process.
func (r *Runtime) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.plugins {
		m.kill()
	}
	r.closed = true
	clear(r.plugins)
	return nil
}

// Hooks returns the hook names a bound plugin is subscribed to.
func (r *Runtime) Hooks(id string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.plugins[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), m.hooks...), true
}

// module is a bound binary plugin.
type module struct {
	id      string
	client  PluginClient
	conn    Conn
	timeout time.Duration
	logger  *slog.Logger
	hooks   []string

	mu     sync.Mutex
	killed bool
}

func (m *module) ID() string {
	return m.id
}

// OnEnable implements plugin.Enabler.
func (m *module) OnEnable(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.conn.Enable(callCtx); err != nil {
		return oops.In("goplugin").With("plugin", m.id).Wrapf(err, "enable")
	}
	return nil
}

// handler forwards one hook trigger to the plugin process and applies the
// result to the payload on the caller's goroutine.
//
// The call is made without holding any runtime lock; if the process is
// killed concurrently the call fails and the bus records the error.
func (m *module) handler(name string) hook.Handler {
	return func(ctx context.Context, payload any) error {
		m.mu.Lock()
		killed := m.killed
		m.mu.Unlock()
		if killed {
			return oops.In("goplugin").With("plugin", m.id).Wrap(ErrPluginNotBound)
		}

		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		res, err := m.conn.HandleEvent(callCtx, newEvent(name, payload))
		cancel()
		if err != nil {
			return oops.In("goplugin").With("plugin", m.id).With("hook", name).Wrapf(err, "handle event")
		}
		if !applyResult(ctx, payload, res) {
			m.logger.Debug("plugin result does not apply to hook payload", "hook", name)
		}
		return nil
	}
}

func (m *module) kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killed {
		return
	}
	m.killed = true
	if m.client != nil {
		m.client.Kill()
	}
}
