// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package hook provides the named-hook event bus that connects plugins to the
// interaction pipeline.
//
// Handlers are invoked synchronously on the triggering goroutine, in
// registration order. A failing or panicking handler is logged and reported
// but never stops the handlers after it.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/evahq/eva/pkg/errutil"
)

// CodeHandlerFailed is the error code of a handler that returned an error or
// panicked.
const CodeHandlerFailed = "HANDLER_FAILED"

// Handler reacts to a hook. The payload type depends on the hook.
type Handler func(ctx context.Context, payload any) error

// Dispatcher fires hooks. *Bus implements it.
type Dispatcher interface {
	Trigger(ctx context.Context, name string, payload any) []*HandlerError
}

// HandlerError describes one failed handler invocation.
type HandlerError struct {
	Hook     string
	Plugin   string
	Position int
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("hook %s: handler %d (%s): %v", e.Hook, e.Position, e.Plugin, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

type registration struct {
	owner   string
	handler Handler
}

// Registration describes a registered handler for introspection.
type Registration struct {
	Hook     string `json:"hook"`
	Plugin   string `json:"plugin"`
	Position int    `json:"position"`
}

// Bus maps hook names to ordered handler lists.
//
// The zero value is not usable; call NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	logger   *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for handler failures.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[string][]registration),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register appends h to the handlers for name. Registering the same handler
// twice makes it run twice.
func (b *Bus) Register(owner, name string, h Handler) {
	if h == nil {
		b.logger.Warn("ignoring nil hook handler", "hook", name, "plugin", owner)
		return
	}
	if !IsKnown(name) {
		b.logger.Debug("registering handler for unknown hook", "hook", name, "plugin", owner)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], registration{owner: owner, handler: h})
}

// Trigger invokes every handler registered for name with payload.
//
// The returned slice holds one entry per failed handler; it is nil when all
// handlers succeed or none are registered.
func (b *Bus) Trigger(ctx context.Context, name string, payload any) []*HandlerError {
	b.mu.RLock()
	regs := make([]registration, len(b.handlers[name]))
	copy(regs, b.handlers[name])
	b.mu.RUnlock()

	triggersTotal.WithLabelValues(name).Inc()

	var failures []*HandlerError
	for i, reg := range regs {
		if err := b.invoke(ctx, name, i, reg, payload); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

func (b *Bus) invoke(ctx context.Context, name string, pos int, reg registration, payload any) *HandlerError {
	start := time.Now()
	defer func() {
		handlerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	var err error
	panicErr := oops.
		In("hook").
		Code(CodeHandlerFailed).
		With("hook", name).
		With("plugin", reg.owner).
		Recover(func() {
			err = reg.handler(WithCaller(ctx, reg.owner), payload)
		})
	if panicErr != nil {
		err = panicErr
	}
	if err == nil {
		return nil
	}

	handlerFailures.WithLabelValues(name, reg.owner).Inc()
	errutil.LogError(b.logger.With("hook", name, "plugin", reg.owner, "position", pos),
		"hook handler failed", err)
	return &HandlerError{Hook: name, Plugin: reg.owner, Position: pos, Err: err}
}

// Handlers returns the registrations for name in invocation order.
func (b *Bus) Handlers(name string) []Registration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	regs := b.handlers[name]
	out := make([]Registration, len(regs))
	for i, r := range regs {
		out[i] = Registration{Hook: name, Plugin: r.owner, Position: i}
	}
	return out
}

// Hooks returns the sorted names of hooks with at least one handler.
func (b *Bus) Hooks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.handlers))
	for name, regs := range b.handlers {
		if len(regs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Registrar returns a buffered registration handle for owner.
func (b *Bus) Registrar(owner string) *Registrar {
	return &Registrar{bus: b, owner: owner}
}
