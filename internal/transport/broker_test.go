// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package transport_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evahq/eva/internal/transport"
)

func receive(t *testing.T, ch <-chan transport.Message) transport.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return transport.Message{}
	}
}

func TestNewMessage(t *testing.T) {
	msg, err := transport.NewMessage(transport.TopicMessages, "Eva startup successful")
	require.NoError(t, err)
	assert.Equal(t, transport.TopicMessages, msg.Topic)
	assert.JSONEq(t, `"Eva startup successful"`, string(msg.Data))

	_, err = transport.NewMessage("x", make(chan int))
	assert.Error(t, err)
}

func TestBroker_PublishSubscribe(t *testing.T) {
	b := transport.NewBroker()
	ch1, cancel1 := b.Subscribe(transport.TopicResponses)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(transport.TopicResponses)
	defer cancel2()
	other, cancel3 := b.Subscribe(transport.TopicMessages)
	defer cancel3()

	msg := transport.Message{Topic: transport.TopicResponses, Data: json.RawMessage(`{"output_text":"hi"}`)}
	require.NoError(t, b.Publish(context.Background(), msg))

	assert.Equal(t, msg, receive(t, ch1))
	assert.Equal(t, msg, receive(t, ch2))
	select {
	case got := <-other:
		t.Fatalf("unexpected message on other topic: %v", got)
	default:
	}
}

func TestBroker_CancelClosesChannel(t *testing.T) {
	b := transport.NewBroker()
	ch, cancel := b.Subscribe("t")
	assert.Equal(t, 1, b.Subscribers("t"))

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers("t"))
}

func TestBroker_DropsWhenBufferFull(t *testing.T) {
	b := transport.NewBroker(transport.WithBufferSize(1))
	ch, cancel := b.Subscribe("t")
	defer cancel()

	first := transport.Message{Topic: "t", Data: json.RawMessage(`1`)}
	second := transport.Message{Topic: "t", Data: json.RawMessage(`2`)}
	require.NoError(t, b.Publish(context.Background(), first))
	require.NoError(t, b.Publish(context.Background(), second))

	assert.Equal(t, first, receive(t, ch))
	select {
	case got := <-ch:
		t.Fatalf("expected second message to be dropped, got %v", got)
	default:
	}
}

func TestBroker_Close(t *testing.T) {
	b := transport.NewBroker()
	ch, cancel := b.Subscribe("t")
	b.Close()
	b.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	err := b.Publish(context.Background(), transport.Message{Topic: "t"})
	assert.ErrorIs(t, err, transport.ErrClosed)

	late, _ := b.Subscribe("t")
	_, ok = <-late
	assert.False(t, ok)
}
