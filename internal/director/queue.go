// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package director

import (
	"context"
	"sync"

	"github.com/evahq/eva/internal/transport"
)

// commandQueue is an unbounded FIFO between the command subscription and
// the worker pool. push never blocks, so the subscription keeps draining
// while every worker is busy.
type commandQueue struct {
	mu     sync.Mutex
	items  []transport.Message
	closed bool
	ready  chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{ready: make(chan struct{}, 1)}
}

func (q *commandQueue) push(msg transport.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	commandsQueued.Set(float64(len(q.items)))
	q.mu.Unlock()
	q.signal()
}

// close stops intake. Items already queued are still returned by pop.
func (q *commandQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *commandQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop waits for the next message. It returns false once the queue is closed
// and empty, or when ctx is done.
func (q *commandQueue) pop(ctx context.Context) (transport.Message, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = transport.Message{}
			q.items = q.items[1:]
			commandsQueued.Set(float64(len(q.items)))
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return transport.Message{}, false
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return transport.Message{}, false
		}
	}
}

// size reports the number of queued messages.
func (q *commandQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
