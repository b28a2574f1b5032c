package chi

import (
	"net/http"

	"github.com/kailas-cloud/docdex/internal/domain"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// Ping handles GET /ping.
func (s *Server) Ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

// HealthCheck handles GET /health. Only a failing critical component turns it into a 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	checks := report.Checks
	if checks == nil {
		checks = map[string]healthuc.CheckResult{}
	}
	writeJSON(w, status, HealthResponse{Status: report.Status, Checks: checks})
}

// GetUsage handles GET /usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	if s.budget == nil {
		handleDomainError(r.Context(), w, domain.ErrNotImplemented)
		return
	}
	writeJSON(w, http.StatusOK, s.budget.Status())
}
