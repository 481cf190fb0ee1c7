// Package core provides the API chassis for the FraudWatch service. It
// creates a chi router and enforces cross-cutting concerns -- panic
// recovery, request correlation, logging, and error handling -- before
// requests reach domain-specific handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fraudwatch/internal/config"
)

// Server encapsulates the HTTP chassis dependencies, allowing for easy
// injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// RouteRegistrars register domain routes under /v1. The composition
	// root appends to this before calling MountRoutes.
	RouteRegistrars []func(chi.Router)

	// HealthProbes are optional dependency checks run by /health. The
	// engine itself is purely in-memory and needs none; an empty list
	// reports healthy.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the router for route
// mounting. It performs a fail-fast check on critical dependencies.
//
// The caller is responsible for appending RouteRegistrars and calling
// MountRoutes after construction. This separation allows tests to customize
// route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the /v1 route group,
// and the top-level health endpoint.
//
// Middleware ordering: Recoverer is outermost to catch all panics, then
// RequestID so every log line carries a correlation ID, then the request
// logger.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		for _, register := range s.RouteRegistrars {
			register(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}
