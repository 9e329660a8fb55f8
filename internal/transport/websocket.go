// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package transport

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// Bridge exposes a Transport to websocket clients. Every frame in either
// direction is a JSON encoded Message. Clients receive the outbound topics
// and may publish on the inbound ones.
type Bridge struct {
	transport    Transport
	upgrader     websocket.Upgrader
	outbound     []string
	inbound      []string
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithOutboundTopics sets the topics forwarded to clients.
func WithOutboundTopics(topics ...string) BridgeOption {
	return func(b *Bridge) { b.outbound = topics }
}

// WithInboundTopics sets the topics clients may publish on.
func WithInboundTopics(topics ...string) BridgeOption {
	return func(b *Bridge) { b.inbound = topics }
}

// WithAllowedOrigins restricts the Origin header of upgrade requests.
// With no origins every request is accepted.
func WithAllowedOrigins(origins ...string) BridgeOption {
	return func(b *Bridge) {
		if len(origins) == 0 {
			return
		}
		b.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, origin)
		}
	}
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBridge creates a bridge that forwards eva_messages and eva_responses
// to clients and accepts eva_commands from them.
func NewBridge(t Transport, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		transport: t,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		outbound:     []string{TopicMessages, TopicResponses},
		inbound:      []string{TopicCommands},
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
		conns:        make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ServeHTTP upgrades the request and serves the client until it disconnects
// or the bridge is closed.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if !b.track(conn) {
		_ = conn.Close()
		return
	}
	clientsConnected.Inc()
	b.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	var writeMu sync.Mutex
	var wg sync.WaitGroup
	cancels := make([]func(), 0, len(b.outbound))
	for _, topic := range b.outbound {
		ch, cancel := b.transport.Subscribe(topic)
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.forward(conn, &writeMu, ch, done)
		}()
	}

	defer func() {
		close(done)
		for _, cancel := range cancels {
			cancel()
		}
		wg.Wait()
		b.untrack(conn)
		_ = conn.Close()
		clientsConnected.Dec()
		b.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}()

	ctx := r.Context()
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("websocket read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if !slices.Contains(b.inbound, msg.Topic) {
			b.logger.Warn("client published on a topic it may not use",
				"remote", r.RemoteAddr, "topic", msg.Topic)
			continue
		}
		if err := b.transport.Publish(ctx, msg); err != nil {
			b.logger.Warn("failed to publish client message", "topic", msg.Topic, "error", err)
			return
		}
	}
}

// forward writes messages from ch until ch closes or done is closed.
func (b *Bridge) forward(conn *websocket.Conn, mu *sync.Mutex, ch <-chan Message, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
			err := conn.WriteJSON(msg)
			mu.Unlock()
			if err != nil {
				b.logger.Debug("websocket write failed", "topic", msg.Topic, "error", err)
				// Unblocks the read loop.
				_ = conn.Close()
				return
			}
		}
	}
}

func (b *Bridge) track(conn *websocket.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.conns[conn] = struct{}{}
	return true
}

func (b *Bridge) untrack(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, conn)
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Close disconnects every client and refuses new ones.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	deadline := time.Now().Add(time.Second)
	for conn := range b.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = conn.Close()
	}
}
