// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// Registrar registers a package's metrics. The hook, plugin, transport and
// director packages each export one as RegisterMetrics.
type Registrar func(prometheus.Registerer)

// Metrics contains process level Eva metrics.
type Metrics struct {
	BuildInfo *prometheus.GaugeVec
	StartTime prometheus.Gauge
}

// NewMetrics creates and registers the process metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eva_build_info",
				Help: "Build information; the value is always 1",
			},
			[]string{"version", "go_version"},
		),
		StartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eva_start_time_seconds",
			Help: "Unix time the process started",
		}),
	}

	reg.MustRegister(m.BuildInfo)
	reg.MustRegister(m.StartTime)
	m.StartTime.Set(float64(time.Now().Unix()))

	return m
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithVersion records version in eva_build_info.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.metrics.BuildInfo.WithLabelValues(version, runtime.Version()).Set(1)
	}
}

// WithRegistrars registers package metrics with the server registry.
func WithRegistrars(fns ...Registrar) Option {
	return func(s *Server) {
		for _, fn := range fns {
			fn(s.registry)
		}
	}
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9100", ":9100" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker, opts ...Option) *Server {
	// A private registry keeps package metrics out of the global one.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the process metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registry returns the registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start begins serving observability endpoints.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.In("observability").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.In("observability").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		// Local httpSrv avoids racing a later Start.
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.In("observability").With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 while the process runs.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 once the runtime has booted, 503 before.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
