// Package api exposes the evaluation pipeline, the opportunity catalog and
// the rule table over HTTP.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rimborsami/rimborsami/internal/catalog"
	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/generator"
	"github.com/rimborsami/rimborsami/internal/metrics"
	"github.com/rimborsami/rimborsami/internal/pipeline"
	"github.com/rimborsami/rimborsami/internal/rules"
)

// Deps are the collaborators the API serves. Repo, Cache, Bus, Generator
// and Metrics are optional.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Processor *pipeline.Processor
	Catalog   *catalog.Loader
	Generator generator.Generator
	Metrics   *metrics.Prometheus

	// RulesPath is re-read on POST /rules/reload. Empty reloads the
	// embedded table.
	RulesPath string
	Version   string
	Logger    *slog.Logger
}

// maxBodyBytes caps request bodies; quiz answers and parsed documents are
// small JSON objects.
const maxBodyBytes = 1 << 20

// Server owns the chi router and the http.Server listening on it.
type Server struct {
	mux  *chi.Mux
	http *http.Server
}

// NewServer wires deps into the route table. Catalog, rule and health
// routes are global; everything under the user group needs X-User-ID and
// counts against the per-user rate limit.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	var recorder metrics.Recorder = metrics.Nop{}
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	h := NewHandler(deps)

	mux := chi.NewRouter()
	mux.Use(
		middleware.RealIP,
		CORSMiddleware(cfg.AllowedOrigins),
		RecoverMiddleware(deps.Logger),
		TracingMiddleware,
		LoggingMiddleware(deps.Logger),
		MetricsMiddleware(recorder),
		middleware.RequestSize(maxBodyBytes),
		middleware.Compress(5, "application/json"),
	)

	mux.Get("/health", h.Health)
	mux.Get("/ready", h.Ready)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}

	mux.Route("/opportunities", func(r chi.Router) {
		r.Get("/", h.ListOpportunities)
		r.Post("/", h.SaveOpportunity)
		r.Get("/{id}", h.GetOpportunity)
		r.Delete("/{id}", h.DeactivateOpportunity)
	})
	mux.Get("/rules", h.GetRules)
	mux.Post("/rules/reload", h.ReloadRules)

	mux.Group(func(r chi.Router) {
		r.Use(UserMiddleware)
		r.Use(RateLimitMiddleware(deps.Cache, cfg.RateLimit, cfg.RateLimitWindow, deps.Logger))

		r.Post("/quiz/evaluate", h.EvaluateQuiz)
		r.Get("/quiz/evaluations/{id}", h.GetQuizEvaluation)
		r.Post("/documents/assess", h.AssessDocument)
		r.Get("/documents/assessments/{id}", h.GetDocumentEvaluation)
		r.Post("/requests/generate", h.GenerateRequest)
	})

	return &Server{
		mux:  mux,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start blocks serving requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the route table, mainly to drive it with httptest.
func (s *Server) Router() http.Handler {
	return s.mux
}
