// Package server wires the ledger, bus, relay and control surface into a
// single HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/webmocket/pkg/bus"
	"github.com/getmockd/webmocket/pkg/config"
	"github.com/getmockd/webmocket/pkg/control"
	"github.com/getmockd/webmocket/pkg/ledger"
	"github.com/getmockd/webmocket/pkg/logging"
	"github.com/getmockd/webmocket/pkg/metrics"
	"github.com/getmockd/webmocket/pkg/relay"
)

// DefaultShutdownTimeout bounds Run's graceful shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("server already started")

// State is the application state shared by every handler.
type State struct {
	Ledger   *ledger.Ledger
	Bus      *bus.Bus
	Sessions *relay.Manager
	Registry *metrics.Registry
	Metrics  *metrics.Relay
}

// NewState creates empty application state for cfg.
func NewState(cfg *config.Config, logger *slog.Logger) *State {
	registry := metrics.NewRegistry()
	st := &State{
		Ledger:   ledger.New(),
		Bus:      bus.New(cfg.BusCapacity),
		Registry: registry,
		Metrics:  metrics.NewRelay(registry),
	}
	st.Sessions = relay.NewManager(relay.Options{
		Ledger:       st.Ledger,
		Bus:          st.Bus,
		Metrics:      st.Metrics,
		Logger:       logger,
		WriteTimeout: cfg.WriteTimeout,
		ReadLimit:    cfg.ReadLimit,
	})
	return st
}

// Server serves the control surface and the WebSocket upgrade path.
type Server struct {
	cfg   *config.Config
	state *State
	log   *slog.Logger

	handler    http.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	errCh    chan error
}

// New creates a Server for cfg. It does not listen until Start or Run.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	logger = logging.OrNop(logger)
	st := NewState(cfg, logger)

	api := control.New(control.Options{
		Ledger:   st.Ledger,
		Bus:      st.Bus,
		Sessions: st.Sessions,
		Metrics:  st.Metrics,
		Registry: st.Registry,
		Logger:   logger,
	})
	handler := api.Handler(cfg.WSPath, st.Sessions.Handler())

	return &Server{
		cfg:     cfg,
		state:   st,
		log:     logger.With(logging.Component, "server"),
		handler: handler,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// State returns the server's application state.
func (s *Server) State() *State {
	return s.state
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound listen address, or the configured one before
// Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.ListenAddr()
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = ln
	s.errCh = make(chan error, 1)

	addr := ln.Addr().String()
	s.log.Info("service started", "addr", addr)
	s.log.Info("socket listening", "url", "ws://"+addr+s.cfg.WSPath)

	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.errCh <- err
	}()
	return nil
}

// Run starts the server and blocks until ctx is cancelled or serving
// fails, then shuts down within DefaultShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops accepting requests, closes the bus and every session, and
// waits for sessions to finish until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down", "sessions", s.state.Sessions.Count())

	err := s.httpServer.Shutdown(ctx)
	s.state.Bus.Close()
	s.state.Sessions.CloseAll()
	if werr := s.state.Sessions.Wait(ctx); werr != nil {
		err = errors.Join(err, fmt.Errorf("waiting for sessions: %w", werr))
	}

	if err != nil {
		s.log.Warn("shutdown incomplete", "error", err)
		return err
	}
	s.log.Info("server stopped")
	return nil
}
