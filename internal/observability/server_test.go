// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, s *Server) <-chan error {
	t.Helper()
	errCh, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	require.NotEmpty(t, s.Addr())
	return errCh
}

func get(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	requests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eva_test_requests_total",
		Help: "test counter",
	})
	s := NewServer("127.0.0.1:0", func() bool { return true },
		WithVersion("1.2.3"),
		WithRegistrars(func(reg prometheus.Registerer) { reg.MustRegister(requests) }),
	)
	start(t, s)
	requests.Add(2)

	status, body := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `eva_build_info{go_version="`)
	assert.Contains(t, body, `version="1.2.3"} 1`)
	assert.Contains(t, body, "eva_start_time_seconds")
	assert.Contains(t, body, "eva_test_requests_total 2")
}

func TestServer_Liveness(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	start(t, s)

	status, body := get(t, s, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	var ready atomic.Bool
	s := NewServer("127.0.0.1:0", ready.Load)
	start(t, s)

	status, body := get(t, s, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready", strings.TrimSpace(body))

	ready.Store(true)
	status, body = get(t, s, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_ReadinessWithNilChecker(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	start(t, s)

	status, _ := get(t, s, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_DoubleStartFails(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	start(t, s)

	_, err := s.Start()
	assert.Error(t, err)
}

func TestServer_StopIdempotent(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	assert.NoError(t, s.Stop(context.Background()))
	start(t, s)
	assert.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	errCh := start(t, s)

	// Closing the listener makes Serve fail.
	_ = s.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error on error channel")
	}
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	errCh := start(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok && err != nil, "unexpected error on normal shutdown: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestServer_StartFailsOnBadAddr(t *testing.T) {
	s := NewServer("256.0.0.1:bad", nil)
	_, err := s.Start()
	require.Error(t, err)
	assert.Empty(t, s.Addr())

	// A failed start leaves the server startable.
	s.addr = "127.0.0.1:0"
	start(t, s)
}
