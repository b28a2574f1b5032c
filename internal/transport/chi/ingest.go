package chi

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/docdex/internal/domain"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
)

const defaultRunsLimit = 20

// RunsResponse lists ledger entries, newest first.
type RunsResponse struct {
	Runs        []domingest.Run `json:"runs"`
	LastSuccess *domingest.Run  `json:"last_success"`
}

// TriggerIngest handles POST /ingest/run. The run continues in the
// background; the reply carries it in its running state.
func (s *Server) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		handleDomainError(r.Context(), w, domain.ErrNotImplemented)
		return
	}
	run, err := s.ingest.Trigger(r.Context())
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/ingest/runs")
	writeJSON(w, http.StatusAccepted, run)
}

// ListIngestRuns handles GET /ingest/runs.
func (s *Server) ListIngestRuns(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		handleDomainError(r.Context(), w, domain.ErrNotImplemented)
		return
	}

	limit := defaultRunsLimit
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer")
		return
	}

	runs, err := s.ingest.Recent(r.Context(), limit)
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	last, ok, err := s.ingest.LastSuccess(r.Context())
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}

	resp := RunsResponse{Runs: runs}
	if resp.Runs == nil {
		resp.Runs = []domingest.Run{}
	}
	if ok {
		resp.LastSuccess = &last
	}
	writeJSON(w, http.StatusOK, resp)
}
