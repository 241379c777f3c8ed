// Package server exposes the discovery engine over HTTP: session lifecycle,
// queue inspection, and the reconciliation review queue.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
	"github.com/matbeedotcom/media-transparency-sub001/internal/resolver"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

// Server serves the HTTP API.
type Server struct {
	manager    *session.Manager
	queue      lead.Queue
	tasks      resolver.TaskStore
	reconciler *resolver.Reconciler

	httpServer *http.Server
}

// New wires the API server. The engine loop itself is not exposed; runs are
// driven by worker processes.
func New(port int, manager *session.Manager, queue lead.Queue, tasks resolver.TaskStore, reconciler *resolver.Reconciler) *Server {
	s := &Server{
		manager:    manager,
		queue:      queue,
		tasks:      tasks,
		reconciler: reconciler,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleDeleteSession)
		r.Post("/{id}/pause", s.handlePauseSession)
		r.Post("/{id}/resume", s.handleResumeSession)
		r.Post("/{id}/complete", s.handleCompleteSession)
		r.Get("/{id}/leads", s.handleListLeads)
		r.Get("/{id}/stats", s.handleQueueStats)
	})

	r.Route("/api/leads", func(r chi.Router) {
		r.Patch("/{id}/priority", s.handleSetLeadPriority)
		r.Post("/{id}/requeue", s.handleRequeueLead)
	})

	r.Route("/api/reconciliation", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/{id}/claim", s.handleClaimTask)
		r.Post("/{id}/apply", s.handleApplyTask)
	})

	return r
}

// Start listens until the context is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
