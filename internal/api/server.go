// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package api serves the HTTP interface: interactions, plugin and hook
// introspection, and the websocket transport.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/samber/oops"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/plugin"
)

// maxRequestBytes bounds interaction request bodies, audio included.
const maxRequestBytes = 16 << 20

// Interactor runs one interaction. *director.Director implements it.
type Interactor interface {
	Interact(ctx context.Context, req *interaction.Request) *interaction.Response
}

// Plugins lists plugin state. *plugin.Manager implements it.
type Plugins interface {
	Descriptors() []plugin.Info
	Get(id string) (plugin.Info, bool)
}

// Hooks lists hook registrations. *hook.Bus implements it.
type Hooks interface {
	Hooks() []string
	Handlers(name string) []hook.Registration
}

// Server is the HTTP API server.
type Server struct {
	addr        string
	router      *mux.Router
	interactor  Interactor
	plugins     Plugins
	hooks       Hooks
	websocket   http.Handler
	origins     []string
	listener    net.Listener
	httpServer  *http.Server
	running     atomic.Bool
	logger      *slog.Logger
	readTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithPlugins enables the plugin routes.
func WithPlugins(p Plugins) Option {
	return func(s *Server) { s.plugins = p }
}

// WithHooks enables the hook route.
func WithHooks(h Hooks) Option {
	return func(s *Server) { s.hooks = h }
}

// WithWebSocket mounts h at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) { s.websocket = h }
}

// WithAllowedOrigins sets the CORS allowed origins. Defaults to all.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an API server listening on addr.
func NewServer(addr string, interactor Interactor, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		router:      mux.NewRouter(),
		interactor:  interactor,
		origins:     []string{"*"},
		logger:      slog.Default(),
		readTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/interactions", s.handleInteract).Methods(http.MethodPost, http.MethodOptions)
	if s.plugins != nil {
		v1.HandleFunc("/plugins", s.handleListPlugins).Methods(http.MethodGet)
		v1.HandleFunc("/plugins/{id}", s.handleGetPlugin).Methods(http.MethodGet)
	}
	if s.hooks != nil {
		v1.HandleFunc("/hooks", s.handleListHooks).Methods(http.MethodGet)
	}
	if s.websocket != nil {
		s.router.Handle("/ws", s.websocket)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. The returned channel receives a serve error, and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.In("api").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.In("api").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.readTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.In("api").With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listen address, or "" when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req interaction.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request: " + err.Error()})
		return
	}
	resp := s.interactor.Interact(r.Context(), &req)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPlugins(w http.ResponseWriter, _ *http.Request) {
	infos := s.plugins.Descriptors()
	if infos == nil {
		infos = []plugin.Info{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	info, ok := s.plugins.Get(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "plugin not found: " + id})
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListHooks(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]hook.Registration)
	for _, name := range s.hooks.Hooks() {
		out[name] = s.hooks.Handlers(name)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
