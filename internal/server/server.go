// Package server exposes the interview orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/interview"
)

const shutdownTimeout = 10 * time.Second

// Config carries the inbound API settings.
type Config struct {
	Addr string
	// DefaultMaxTurns applies when the client does not ask for a turn count.
	DefaultMaxTurns int
	// MaxTurnsCeiling bounds what a client may ask for.
	MaxTurnsCeiling int
}

// Server routes session operations to the orchestrator.
type Server struct {
	registry     *interview.Registry
	orchestrator *interview.Orchestrator
	log          *zap.Logger
	cfg          Config
	httpServer   *http.Server
}

// New builds the HTTP server around the registry and orchestrator.
func New(cfg Config, registry *interview.Registry, orchestrator *interview.Orchestrator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultMaxTurns <= 0 {
		cfg.DefaultMaxTurns = 5
	}
	if cfg.MaxTurnsCeiling <= 0 {
		cfg.MaxTurnsCeiling = 20
	}

	s := &Server{
		registry:     registry,
		orchestrator: orchestrator,
		log:          log,
		cfg:          cfg,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", s.handleCreateSession)
	mux.HandleFunc("POST /session/{id}/answer", s.handleSubmitAnswer)
	mux.HandleFunc("GET /session/{id}", s.handleGetSession)
	return mux
}

// Handler returns the routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.Info("http server listening", zap.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.log.Info("http server stopped")
	return nil
}
