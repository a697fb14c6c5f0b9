package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/budget"
	"github.com/vfirsov/agentflow/internal/eventbus"
	"github.com/vfirsov/agentflow/internal/executor"
)

// Server is the HTTP surface over the execution core: projects, plans,
// tasks, checkpoints, budget status, and an event stream.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
}

// NewServer creates a new Server instance. store is the single source of
// truth for project/task state (reads go straight through it; there is no
// API-local shadow copy, since Store already serializes concurrent access).
func NewServer(addr string, store contracts.Store, bus *eventbus.Bus, enforcer *budget.Enforcer, exec *executor.Executor, logger *zap.SugaredLogger) *Server {
	handlers := NewHandlers(store, bus, enforcer, exec, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/projects", handlers.HandleCreateProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", handlers.HandleGetProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/plan", handlers.HandleSubmitPlan)
	mux.HandleFunc("POST /api/v1/projects/{id}/start", handlers.HandleStartProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/pause", handlers.HandlePauseProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/cancel", handlers.HandleCancelProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/tasks", handlers.HandleListTasks)
	mux.HandleFunc("GET /api/v1/projects/{id}/tasks/{taskID}", handlers.HandleGetTask)
	mux.HandleFunc("POST /api/v1/projects/{id}/tasks/{taskID}/retry", handlers.HandleRetryTask)
	mux.HandleFunc("GET /api/v1/projects/{id}/budget", handlers.HandleBudgetStatus)
	mux.HandleFunc("GET /api/v1/projects/{id}/events", handlers.HandleSubscribeEvents)
	mux.HandleFunc("GET /api/v1/checkpoints/{id}", handlers.HandleGetCheckpoint)
	mux.HandleFunc("POST /api/v1/checkpoints/{id}/resolve", handlers.HandleResolveCheckpoint)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		handlers: handlers,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // event streams hold the connection open indefinitely
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server. Blocks until the server is stopped or an
// error occurs.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handlers returns the Handlers for testing purposes.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}
