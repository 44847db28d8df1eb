package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/gatekeeper/internal/approval"
	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/database"
	"github.com/kozaktomas/gatekeeper/internal/web/handlers"
	"github.com/kozaktomas/gatekeeper/internal/web/middleware"
)

const sweepInterval = time.Minute

// Deps wires the server to its collaborators.
type Deps struct {
	Detector   handlers.FaceDetector
	Identities database.IdentityStore
	Attendance database.AttendanceStore
	Visitors   database.VisitorStore
	Workflow   *approval.Workflow
	Hub        *approval.CorrelationHub
}

// Server represents the web server
type Server struct {
	config      *config.Config
	deps        Deps
	router      *chi.Mux
	httpServer  *http.Server
	stopSweeper context.CancelFunc
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORS())

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and the session expiry sweeper.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweeper = cancel
	go s.deps.Workflow.RunSweeper(ctx, sweepInterval)

	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	// Stop the session expiry goroutine
	if s.stopSweeper != nil {
		s.stopSweeper()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
