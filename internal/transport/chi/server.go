// Package chi exposes the card catalogue, ingestion and rules services over HTTP.
package chi

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain/search/request"
	"github.com/kailas-cloud/docdex/internal/metrics"
	carduc "github.com/kailas-cloud/docdex/internal/usecase/card"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docdex/internal/usecase/ingest"
	"github.com/kailas-cloud/docdex/internal/usecase/provider"
	rulesuc "github.com/kailas-cloud/docdex/internal/usecase/rules"
)

// maxBodyBytes caps request bodies (aggregation pipelines).
const maxBodyBytes = 1 << 20

// BudgetReader exposes the provider token budget.
type BudgetReader interface {
	Status() provider.BudgetStatus
}

// Server holds the HTTP handlers. Ingestion, rules and budget are optional;
// their routes answer 501 when the service is not configured.
type Server struct {
	cards  *carduc.Service
	health *healthuc.Service
	ingest *ingestuc.Service
	rules  *rulesuc.Service
	dnd    *rulesuc.Service
	budget BudgetReader
	limits request.Limits
	keys   *keyring
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(cards *carduc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		cards:  cards,
		health: health,
		limits: request.DefaultLimits,
		keys:   newKeyring(nil, nil),
		logger: logger,
	}
}

// WithIngest enables the ingestion endpoints.
func (s *Server) WithIngest(svc *ingestuc.Service) *Server {
	s.ingest = svc
	return s
}

// WithRules enables the rules endpoints.
func (s *Server) WithRules(svc *rulesuc.Service) *Server {
	s.rules = svc
	return s
}

// WithDnDRules enables the Dungeons & Dragons rules endpoints.
func (s *Server) WithDnDRules(svc *rulesuc.Service) *Server {
	s.dnd = svc
	return s
}

// WithBudget enables the usage endpoint.
func (s *Server) WithBudget(b BudgetReader) *Server {
	s.budget = b
	return s
}

// WithLimits sets the search page size bounds.
func (s *Server) WithLimits(l request.Limits) *Server {
	s.limits = l
	return s
}

// WithAPIKeys turns on API key authentication. Triggering ingestion needs
// an admin key; without admin keys every reader key is one.
func (s *Server) WithAPIKeys(readers, admins []string) *Server {
	s.keys = newKeyring(readers, admins)
	return s
}

// Routes builds the router with its middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(requestScope(s.logger))
	r.Use(recoverJSON)
	r.Use(s.keys.authenticate)
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/ping", s.Ping)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/usage", s.GetUsage)

	r.Route("/cards", func(r chi.Router) {
		r.Get("/search/{text}", s.SearchCards)
		r.Get("/id/{id}", s.GetCard)
		r.Get("/id/{id}/prices", s.GetPriceHistory)
		r.Get("/oracle/{oracle_id}", s.GetOracleCard)
		r.Get("/named/{name}", s.GetNamedCard)
	})
	r.Get("/sets", s.ListSets)
	r.Post("/aggregate/{collection}", s.Aggregate)

	r.Route("/ingest", func(r chi.Router) {
		r.With(s.keys.requireAdmin).Post("/run", s.TriggerIngest)
		r.Get("/runs", s.ListIngestRuns)
	})

	r.Route("/rules", func(r chi.Router) {
		r.Get("/ruling/{question}", s.Ruling)
		r.Get("/search/{question}", s.SearchRules)
	})
	r.Route("/dnd", func(r chi.Router) {
		r.Get("/ruling/{question}", s.DnDRuling)
		r.Get("/search/{question}", s.SearchDnDRules)
	})
	return r
}

// pathParam returns the decoded path parameter. chi matches on the raw
// path when the URL carries escaped slashes, leaving the value escaped.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}
