// Package api implements the admin HTTP API: superuser login, host
// management, gateway control and configuration backups.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/railvoice/roclink/internal/api/middleware"
	"github.com/railvoice/roclink/internal/config"
	"github.com/railvoice/roclink/internal/model"
	"github.com/railvoice/roclink/internal/session"
	"github.com/railvoice/roclink/internal/topology"
)

// Server is the admin API HTTP server.
type Server struct {
	router    *chi.Mux
	registry  *session.Registry
	store     *config.Store
	topo      *topology.Store
	jwtSecret []byte

	apiLimiter  *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
}

// NewServer creates the admin API server and mounts its routes. The metrics
// handler is mounted at /metrics outside the authenticated group.
func NewServer(registry *session.Registry, store *config.Store, topo *topology.Store, jwtSecret []byte, metricsHandler http.Handler) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		registry:    registry,
		store:       store,
		topo:        topo,
		jwtSecret:   jwtSecret,
		apiLimiter:  middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		authLimiter: middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
	}
	s.routes(metricsHandler)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the background rate limiter goroutines.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.authLimiter.Stop()
}

func (s *Server) routes(metricsHandler http.Handler) {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.apiLimiter))

		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.authLimiter))
			r.Post("/auth/login", s.handleLogin)
		})

		// Everything below requires a superuser JWT.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminAuth(s.jwtSecret))

			r.Get("/status", s.handleStatus)
			r.Get("/simulations", s.handleListSimulations)

			r.Route("/hosts", func(r chi.Router) {
				r.Get("/", s.handleListHosts)
				r.Post("/", s.handleAddHost)

				r.Route("/{simID}", func(r chi.Router) {
					r.Put("/", s.handleUpdateHost)
					r.Delete("/", s.handleDeleteHost)
					r.Post("/enable", s.handleEnableHost)
					r.Post("/disable", s.handleDisableHost)
					r.Post("/connections", s.handleSetConnections)

					r.Route("/gateway", func(r chi.Router) {
						r.Post("/enable", s.handleEnableGateway)
						r.Post("/disable", s.handleDisableGateway)
						r.Put("/credentials", s.handleSetGatewayCredentials)
					})
				})
			})

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", s.handleListBackups)
				r.Post("/{name}/restore", s.handleRestoreBackup)
			})
		})
	})
}

// writeRegistryError maps the well-known sentinel errors to HTTP statuses.
func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrHostNotFound),
		errors.Is(err, topology.ErrSimulationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, config.ErrHostExists),
		errors.Is(err, session.ErrSimAlreadyActive),
		errors.Is(err, session.ErrSimNotActive),
		errors.Is(err, session.ErrHostDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidHost):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoEncryptor):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
