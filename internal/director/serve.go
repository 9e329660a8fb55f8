// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package director

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/oops"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/transport"
	"github.com/evahq/eva/pkg/errutil"
)

const poolReleaseTimeout = 5 * time.Second

type command struct {
	ctx context.Context
	msg transport.Message
	wg  *sync.WaitGroup
}

// Serve announces startup on eva_messages, then answers every request
// received on eva_commands on eva_responses. Requests run concurrently on a
// bounded pool; commands arriving while every worker is busy wait in an
// unbounded queue so the subscription never backs up. Serve returns nil when ctx is cancelled or the transport
// closes, after in-flight requests finish.
func (d *Director) Serve(ctx context.Context) error {
	if d.transport == nil {
		return oops.In("director").Code(CodeNoTransport).Wrap(ErrNoTransport)
	}

	pool, err := ants.NewPoolWithFunc(d.workers, func(arg any) {
		cmd, ok := arg.(*command)
		if !ok {
			panic("director pool args type error")
		}
		defer cmd.wg.Done()
		d.handle(cmd.ctx, cmd.msg)
	})
	if err != nil {
		return oops.In("director").With("workers", d.workers).Wrapf(err, "create worker pool")
	}
	defer func() {
		if err := pool.ReleaseTimeout(poolReleaseTimeout); err != nil {
			d.logger.Warn("worker pool did not stop in time", "error", err)
		}
	}()

	commands, cancel := d.transport.Subscribe(transport.TopicCommands)
	defer cancel()

	if err := d.Publish(ctx, StartupMessage); err != nil {
		errutil.LogError(d.logger, "failed to announce startup", err)
	}
	d.logger.InfoContext(ctx, "listening for commands", "topic", transport.TopicCommands, "workers", d.workers)

	var wg sync.WaitGroup
	defer wg.Wait()

	queue := newCommandQueue()
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		d.dispatch(ctx, queue, pool, &wg)
	}()
	defer func() {
		queue.close()
		<-dispatched
	}()

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "serve loop stopping", "queued", queue.size())
			return nil
		case msg, ok := <-commands:
			if !ok {
				d.logger.InfoContext(ctx, "command subscription closed")
				return nil
			}
			queue.push(msg)
		}
	}
}

// dispatch feeds queued commands to the pool until the queue is closed and
// drained or ctx is done. Invoke blocks while every worker is busy.
func (d *Director) dispatch(ctx context.Context, queue *commandQueue, pool *ants.PoolWithFunc, wg *sync.WaitGroup) {
	for {
		msg, ok := queue.pop(ctx)
		if !ok {
			return
		}
		wg.Add(1)
		if err := pool.Invoke(&command{ctx: ctx, msg: msg, wg: wg}); err != nil {
			wg.Done()
			d.logger.WarnContext(ctx, "failed to schedule command", "error", err)
		}
	}
}

// handle decodes one command, runs it and publishes the response.
func (d *Director) handle(ctx context.Context, msg transport.Message) {
	var req interaction.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		commandsRejected.Inc()
		d.logger.WarnContext(ctx, "discarding malformed command", "error", err)
		return
	}

	resp := d.Interact(ctx, &req)

	out, err := transport.NewMessage(transport.TopicResponses, resp)
	if err != nil {
		errutil.LogError(d.logger, "failed to encode response", err)
		return
	}
	if err := d.transport.Publish(ctx, out); err != nil {
		errutil.LogError(d.logger, "failed to publish response", err)
	}
}

// Publish broadcasts message to every client on eva_messages.
func (d *Director) Publish(ctx context.Context, message string) error {
	return d.PublishTo(ctx, transport.TopicMessages, message)
}

// PublishTo broadcasts message on topic. The pre-publish and publish hooks
// run before the message is sent and may rewrite it; post-publish runs
// after a successful send.
func (d *Director) PublishTo(ctx context.Context, topic, message string) error {
	if d.transport == nil {
		return oops.In("director").Code(CodeNoTransport).Wrap(ErrNoTransport)
	}

	b := &interaction.Broadcast{Topic: topic, Message: message}
	d.logger.DebugContext(ctx, "ready to publish message", "topic", topic)
	d.trigger(ctx, hook.PrePublish, b)
	d.trigger(ctx, hook.Publish, b)

	msg, err := transport.NewMessage(b.Topic, b.Message)
	if err != nil {
		return err
	}
	if err := d.transport.Publish(ctx, msg); err != nil {
		return oops.In("director").With("topic", b.Topic).Wrapf(err, "publish message")
	}
	d.logger.InfoContext(ctx, "published message", "topic", b.Topic, "message", b.Message)

	d.trigger(ctx, hook.PostPublish, b)
	return nil
}
