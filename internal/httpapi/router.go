// Package httpapi wires the HTTP surface of the tax engine.
// It keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/service/taxcalc"
)

// Server wires handlers and middleware using Chi.
// It composes read (repo) and write (writer) dependencies through the service.
type Server struct {
	svc   taxcalc.Service
	repo  taxcalc.Repo
	rules ruleset.Source
	log   *slog.Logger
	rt    *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by basic request/response logging and panic recovery.
func New(repo taxcalc.Repo, writer taxcalc.Writer, rules ruleset.Source, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		svc:   taxcalc.New(repo, writer, rules),
		repo:  repo,
		rules: rules,
		rt:    r,
		log:   logger,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Calculations (v1)
	s.rt.With(s.validatePostCalculation()).Post("/v1/calculations", s.postCalculation)
	s.rt.With(s.validateFinalize()).Post("/v1/calculations/finalize", s.finalizeCalculation)
	s.rt.With(s.validateOwnerQuery()).Get("/v1/calculations", s.listCalculations)
	s.rt.With(s.validateOwnerQuery()).Get("/v1/calculations/{id}", s.getCalculation)
	s.rt.With(s.validateOwnerQuery()).Get("/v1/calculations/{id}/export", s.exportCalculation)
	// Rule tables (v1, read only)
	s.rt.Get("/v1/rule-tables/{jurisdiction}/{year}", s.getRuleTable)
	s.rt.Get("/v1/dictionary", s.getDictionary)
	// Health (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}
