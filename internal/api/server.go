// Package api is the HTTP surface of the qualification agent: session
// open/resume, the streaming turn endpoint and health probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nestora/nestora/internal/agent"
	"github.com/nestora/nestora/internal/session"
)

// TurnRunner is the slice of the orchestrator this package needs.
type TurnRunner interface {
	Turn(ctx context.Context, sess *session.Session, userText string, sink agent.Sink) error
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger *slog.Logger
	Store  session.Store // required
	Runner TurnRunner    // required
	Pool   *pgxpool.Pool // optional: nil disables pool checks in /readyz
}

// Server is the JSON/SSE HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("turn runner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sh := &sessionHandler{store: cfg.Store, logger: logger}
	th := &turnHandler{store: cfg.Store, runner: cfg.Runner, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/session", sh.open)
	mux.HandleFunc("POST /agent/turn", th.stream)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> Routes
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
