// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package pluginsdk_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/evahq/eva/pkg/pluginsdk"
)

type echoHandler struct {
	enableErr error
	enabled   bool
	events    []pluginsdk.Event
}

func (h *echoHandler) Hooks() []string {
	return []string{"interaction", "post-set-*"}
}

func (h *echoHandler) HandleEvent(_ context.Context, e pluginsdk.Event) (pluginsdk.Result, error) {
	h.events = append(h.events, e)
	if e.InputText == nil {
		return pluginsdk.Result{}, errors.New("no input text")
	}
	if rest, ok := strings.CutPrefix(*e.InputText, "echo "); ok {
		return pluginsdk.Respond(rest), nil
	}
	return pluginsdk.Result{}, nil
}

func (h *echoHandler) Enable(_ context.Context) error {
	h.enabled = true
	return h.enableErr
}

type plainHandler struct{}

func (plainHandler) Hooks() []string { return nil }

func (plainHandler) HandleEvent(context.Context, pluginsdk.Event) (pluginsdk.Result, error) {
	return pluginsdk.Result{}, nil
}

// dial serves h over an in-memory listener and returns a client for it.
func dial(t *testing.T, h pluginsdk.Handler) *pluginsdk.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pluginsdk.RegisterServer(srv, h)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return pluginsdk.NewClient(conn)
}

func TestClient_Hooks(t *testing.T) {
	c := dial(t, &echoHandler{})
	hooks, err := c.Hooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"interaction", "post-set-*"}, hooks)
}

func TestClient_HandleEvent(t *testing.T) {
	h := &echoHandler{}
	c := dial(t, h)
	text := "echo hello"

	res, err := c.HandleEvent(context.Background(), pluginsdk.Event{
		Hook:          "interaction",
		InteractionID: "01J0000000000000000000000",
		InputText:     &text,
		InputAudio:    &pluginsdk.Audio{Data: []byte{0, 1, 2}, ContentType: "audio/wav"},
	})
	require.NoError(t, err)

	require.NotNil(t, res.OutputText)
	assert.Equal(t, "hello", *res.OutputText)
	assert.False(t, res.Amend)

	require.Len(t, h.events, 1)
	got := h.events[0]
	assert.Equal(t, "interaction", got.Hook)
	assert.Equal(t, []byte{0, 1, 2}, got.InputAudio.Data)
	assert.Nil(t, got.OutputText)
}

func TestClient_HandleEvent_NoChange(t *testing.T) {
	c := dial(t, &echoHandler{})
	text := "what time is it"
	res, err := c.HandleEvent(context.Background(), pluginsdk.Event{Hook: "interaction", InputText: &text})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestClient_HandleEvent_Error(t *testing.T) {
	c := dial(t, &echoHandler{})
	_, err := c.HandleEvent(context.Background(), pluginsdk.Event{Hook: "interaction"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input text")
}

func TestClient_Enable(t *testing.T) {
	h := &echoHandler{}
	require.NoError(t, dial(t, h).Enable(context.Background()))
	assert.True(t, h.enabled)

	failing := &echoHandler{enableErr: errors.New("missing api key")}
	err := dial(t, failing).Enable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing api key")

	assert.NoError(t, dial(t, plainHandler{}).Enable(context.Background()))
}

func TestGRPCPlugin_GRPCServer_NilHandler(t *testing.T) {
	s := grpc.NewServer()
	defer s.Stop()

	err := (&pluginsdk.GRPCPlugin{}).GRPCServer(nil, s)
	assert.EqualError(t, err, "pluginsdk: handler is nil")
}

func TestGRPCPlugin_GRPCServer_RegistersService(t *testing.T) {
	s := grpc.NewServer()
	defer s.Stop()

	require.NoError(t, (&pluginsdk.GRPCPlugin{Impl: plainHandler{}}).GRPCServer(nil, s))
	assert.Contains(t, s.GetServiceInfo(), pluginsdk.ServiceName)
}

func TestResultHelpers(t *testing.T) {
	assert.True(t, pluginsdk.Result{}.Empty())

	r := pluginsdk.Amend("edited")
	assert.Equal(t, "edited", *r.OutputText)
	assert.True(t, r.Amend)

	r = pluginsdk.Transcribe("heard")
	assert.Equal(t, "heard", *r.InputText)
	assert.False(t, r.Empty())
}
