// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package transport carries messages between Eva and its clients.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// Topics shared by Eva and its clients.
const (
	// TopicMessages carries broadcasts such as the startup notice.
	TopicMessages = "eva_messages"
	// TopicCommands carries interaction requests from clients.
	TopicCommands = "eva_commands"
	// TopicResponses carries interaction results.
	TopicResponses = "eva_responses"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 100

// ErrClosed is returned when publishing to a closed broker.
var ErrClosed = errors.New("transport closed")

// Message is one published payload. Data holds JSON.
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// NewMessage encodes v as the data of a message on topic.
func NewMessage(topic string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, oops.In("transport").With("topic", topic).Wrapf(err, "encode message")
	}
	return Message{Topic: topic, Data: data}, nil
}

// Transport is a topic based publish/subscribe channel.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns a channel of messages on topic and a function that
	// ends the subscription and closes the channel.
	Subscribe(topic string) (<-chan Message, func())
}

// Broker is an in-process Transport. Slow subscribers lose messages rather
// than block publishers.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string][]chan Message
	bufSize int
	closed  bool
	logger  *slog.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithBrokerLogger sets the logger used for dropped messages.
func WithBrokerLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroker creates an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:    make(map[string][]chan Message),
		bufSize: DefaultBufferSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe implements Transport. Subscribing to a closed broker returns a
// closed channel.
func (b *Broker) Subscribe(topic string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.bufSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[topic] = append(b.subs[topic], ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(topic, ch) })
	}
}

func (b *Broker) unsubscribe(topic string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, sub := range subs {
		if sub == ch {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish implements Transport. It never blocks.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return oops.In("transport").With("topic", msg.Topic).Wrap(ErrClosed)
	}

	publishedTotal.WithLabelValues(msg.Topic).Inc()
	for _, ch := range b.subs[msg.Topic] {
		select {
		case ch <- msg:
		default:
			droppedTotal.WithLabelValues(msg.Topic).Inc()
			b.logger.WarnContext(ctx, "message dropped: subscriber buffer full",
				"topic", msg.Topic,
				"size", len(msg.Data),
			)
		}
	}
	return nil
}

// Subscribers returns the number of subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close ends every subscription. Later publishes fail with ErrClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, topic)
	}
}
