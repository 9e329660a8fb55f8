// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package hook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/pkg/errutil"
)

func TestBus_TriggerRunsHandlersInRegistrationOrder(t *testing.T) {
	bus := hook.NewBus()
	var order []string

	bus.Register("a", hook.Interaction, func(_ context.Context, _ any) error {
		order = append(order, "a")
		return nil
	})
	bus.Register("b", hook.Interaction, func(_ context.Context, _ any) error {
		order = append(order, "b")
		return nil
	})

	failures := bus.Trigger(context.Background(), hook.Interaction, nil)

	assert.Nil(t, failures)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestBus_DuplicateRegistrationRunsTwice(t *testing.T) {
	bus := hook.NewBus()
	calls := 0
	h := func(_ context.Context, _ any) error {
		calls++
		return nil
	}

	bus.Register("a", hook.PreBoot, h)
	bus.Register("a", hook.PreBoot, h)
	bus.Trigger(context.Background(), hook.PreBoot, nil)

	assert.Equal(t, 2, calls)
}

func TestBus_TriggerWithoutHandlersIsNoop(t *testing.T) {
	bus := hook.NewBus()
	assert.Nil(t, bus.Trigger(context.Background(), "nothing-here", "payload"))
}

func TestBus_FailingHandlerDoesNotStopLaterHandlers(t *testing.T) {
	bus := hook.NewBus()
	var ran []string

	bus.Register("bad", hook.Interaction, func(_ context.Context, _ any) error {
		ran = append(ran, "bad")
		return errors.New("boom")
	})
	bus.Register("panicky", hook.Interaction, func(_ context.Context, _ any) error {
		ran = append(ran, "panicky")
		panic("kaboom")
	})
	bus.Register("good", hook.Interaction, func(_ context.Context, _ any) error {
		ran = append(ran, "good")
		return nil
	})

	failures := bus.Trigger(context.Background(), hook.Interaction, nil)

	assert.Equal(t, []string{"bad", "panicky", "good"}, ran)
	require.Len(t, failures, 2)
	assert.Equal(t, "bad", failures[0].Plugin)
	assert.Equal(t, 0, failures[0].Position)
	assert.EqualError(t, failures[0].Unwrap(), "boom")
	assert.Equal(t, "panicky", failures[1].Plugin)
	assert.Equal(t, 1, failures[1].Position)
	errutil.AssertErrorCode(t, failures[1].Err, hook.CodeHandlerFailed)
}

func TestBus_HandlersReceiveSamePayload(t *testing.T) {
	bus := hook.NewBus()
	type box struct{ n int }
	payload := &box{}

	for range 3 {
		bus.Register("p", hook.Interaction, func(_ context.Context, p any) error {
			p.(*box).n++
			return nil
		})
	}
	bus.Trigger(context.Background(), hook.Interaction, payload)

	assert.Equal(t, 3, payload.n)
}

func TestBus_HandlerContextCarriesOwner(t *testing.T) {
	bus := hook.NewBus()
	var got string

	bus.Register("weather", hook.Interaction, func(ctx context.Context, _ any) error {
		got = hook.CallerFrom(ctx)
		return nil
	})
	bus.Trigger(context.Background(), hook.Interaction, nil)

	assert.Equal(t, "weather", got)
}

func TestBus_NilHandlerIgnored(t *testing.T) {
	bus := hook.NewBus()
	bus.Register("a", hook.Interaction, nil)

	assert.Empty(t, bus.Handlers(hook.Interaction))
	assert.Empty(t, bus.Hooks())
}

func TestBus_Introspection(t *testing.T) {
	bus := hook.NewBus()
	noop := func(_ context.Context, _ any) error { return nil }

	bus.Register("b", hook.PostBoot, noop)
	bus.Register("a", hook.Interaction, noop)
	bus.Register("c", hook.Interaction, noop)

	assert.Equal(t, []string{hook.Interaction, hook.PostBoot}, bus.Hooks())
	assert.Equal(t, []hook.Registration{
		{Hook: hook.Interaction, Plugin: "a", Position: 0},
		{Hook: hook.Interaction, Plugin: "c", Position: 1},
	}, bus.Handlers(hook.Interaction))
}

func TestCallerFrom_DefaultsToCore(t *testing.T) {
	assert.Equal(t, hook.Core, hook.CallerFrom(context.Background()))
	assert.Equal(t, "x", hook.CallerFrom(hook.WithCaller(context.Background(), "x")))
	assert.Equal(t, hook.Core, hook.CallerFrom(hook.WithCaller(context.Background(), "")))
}

func TestHandlerError_Message(t *testing.T) {
	err := &hook.HandlerError{Hook: "interaction", Plugin: "p", Position: 2, Err: errors.New("x")}
	assert.Equal(t, "hook interaction: handler 2 (p): x", err.Error())
}
