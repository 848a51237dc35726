// Package api provides the HTTP surface of GoalPipe.
//
// It exposes enrollment, session and material inspection, the message log,
// and the inbound Twilio webhook. Setup conversation itself happens over the
// messaging transport; the API only starts it and reports on it.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/messaging"
	"github.com/BTreeMap/GoalPipe/internal/setup"
	"github.com/BTreeMap/GoalPipe/internal/store"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown on Stop.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds slow-header clients.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP endpoints to the store, the messaging service, and
// the setup engine.
type Server struct {
	addr       string
	st         store.Store
	msgService messaging.Service
	engine     *setup.Engine
	httpServer *http.Server
}

// NewServer creates an API server. The engine drives setup sessions started
// through POST /enroll; reads go straight to the store.
func NewServer(st store.Store, msgService messaging.Service, engine *setup.Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:       cfg.Addr,
		st:         st,
		msgService: msgService,
		engine:     engine,
	}
}

// Handler builds the route table. Exposed separately from Run for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/enroll", s.enrollHandler)
	mux.HandleFunc("/session", s.sessionHandler)
	mux.HandleFunc("/material", s.materialHandler)
	mux.HandleFunc("/subscription", s.subscriptionHandler)
	mux.HandleFunc("/receipts", s.receiptsHandler)
	mux.HandleFunc("/responses", s.responsesHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/health", s.healthHandler)

	// The Twilio webhook only exists when the Twilio transport is active.
	if twilio, ok := s.msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("/webhook/twilio", twilio.WebhookHandler)
		slog.Debug("Server.Handler: Twilio webhook route registered")
	}

	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	slog.Info("Server.Run: API listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server.Run: server error", "error", err)
		return err
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Stop: shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
