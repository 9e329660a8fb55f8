// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package hook

import "sync"

// Registrar buffers the registrations a plugin makes while it is being
// activated. Nothing reaches the bus until Commit; Discard drops the buffer.
type Registrar struct {
	bus   *Bus
	owner string

	mu        sync.Mutex
	pending   []pending
	committed bool
}

type pending struct {
	name    string
	handler Handler
}

// Owner returns the plugin ID the registrations are recorded under.
func (r *Registrar) Owner() string {
	return r.owner
}

// On queues h for name. After Commit, On registers directly.
func (r *Registrar) On(name string, h Handler) {
	r.mu.Lock()
	if r.committed {
		r.mu.Unlock()
		r.bus.Register(r.owner, name, h)
		return
	}
	r.pending = append(r.pending, pending{name: name, handler: h})
	r.mu.Unlock()
}

// Pending returns the number of queued registrations.
func (r *Registrar) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Commit registers the queued handlers on the bus in the order they were
// queued.
func (r *Registrar) Commit() {
	r.mu.Lock()
	queued := r.pending
	r.pending = nil
	r.committed = true
	r.mu.Unlock()

	for _, p := range queued {
		r.bus.Register(r.owner, p.name, p.handler)
	}
}

// Discard drops the queued handlers.
func (r *Registrar) Discard() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}
