package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"togglbot/internal/config"
	"togglbot/internal/reminder"
	"togglbot/internal/store"
)

// Dispatcher answers one chat message.
type Dispatcher interface {
	Handle(ctx context.Context, userID, text string) string
}

// Replier answers an inbound event through its reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Sweeper runs one reminder pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (reminder.Result, error)
}

type Deps struct {
	Records    *store.Records
	Dispatcher Dispatcher
	Replier    Replier
	// Sweeper is optional; POST /v1/sweep answers 503 without it.
	Sweeper Sweeper
}

type Server struct {
	cfg    config.Config
	deps   Deps
	router *chi.Mux

	// inflight tracks webhook events still being processed after their
	// request returned.
	inflight sync.WaitGroup
}

func NewServer(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)

	r.Route("/v1", func(r chi.Router) {
		r.Use(adminAuthMiddleware(s.cfg.AdminToken))
		r.Get("/users", s.handleUsers)
		r.Get("/usage", s.handleUsage)
		r.Post("/sweep", s.handleSweep)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
}

// Wait blocks until every accepted webhook event has been handled or ctx
// ends.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
