package chi

import (
	"net/http"
	"strconv"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/logger"
	rulesuc "github.com/kailas-cloud/docdex/internal/usecase/rules"
)

// Token usage headers. The completion count is only known once the
// answer has been streamed, so it travels as a trailer.
const (
	headerEmbeddingTokens  = "X-Embedding-Tokens"
	headerCompletionTokens = "X-Completion-Tokens"
)

// RuleMatch is one retrieved rule paragraph.
type RuleMatch struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// RuleSearchResponse is the body of GET /rules/search/{question} and
// GET /dnd/search/{question}.
type RuleSearchResponse struct {
	Matches []RuleMatch `json:"matches"`
}

// Ruling handles GET /rules/ruling/{question}: a plain-text answer streamed
// as the model produces it.
func (s *Server) Ruling(w http.ResponseWriter, r *http.Request) { s.ruling(w, r, s.rules) }

// DnDRuling handles GET /dnd/ruling/{question}.
func (s *Server) DnDRuling(w http.ResponseWriter, r *http.Request) { s.ruling(w, r, s.dnd) }

// SearchRules handles GET /rules/search/{question}: the retrieved
// paragraphs without an answer.
func (s *Server) SearchRules(w http.ResponseWriter, r *http.Request) { s.searchRules(w, r, s.rules) }

// SearchDnDRules handles GET /dnd/search/{question}.
func (s *Server) SearchDnDRules(w http.ResponseWriter, r *http.Request) { s.searchRules(w, r, s.dnd) }

func (s *Server) ruling(w http.ResponseWriter, r *http.Request, svc *rulesuc.Service) {
	if svc == nil {
		handleDomainError(r.Context(), w, domain.ErrNotImplemented)
		return
	}
	k, ok := paragraphCount(w, r)
	if !ok {
		return
	}

	question := pathParam(r, "question")
	ctx, usage := domain.NewContextWithUsage(logger.Annotate(r.Context(), zap.Int("paragraphs", k)))
	sw := &streamWriter{w: w, rc: http.NewResponseController(w), usage: usage}
	if err := svc.Ask(ctx, question, k, sw); err != nil {
		if !sw.started {
			handleDomainError(ctx, w, err)
			return
		}
		// Headers are gone; the client sees a truncated answer.
		logger.From(ctx).Warn("Ruling stream aborted", zap.Error(err))
		return
	}
	sw.start()

	_, completion, _ := usage.Totals()
	w.Header().Set(headerCompletionTokens, strconv.Itoa(completion))
}

func (s *Server) searchRules(w http.ResponseWriter, r *http.Request, svc *rulesuc.Service) {
	if svc == nil {
		handleDomainError(r.Context(), w, domain.ErrNotImplemented)
		return
	}
	k, ok := paragraphCount(w, r)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	matches, err := svc.Search(ctx, pathParam(r, "question"), k)
	if err != nil {
		handleDomainError(ctx, w, err)
		return
	}

	resp := RuleSearchResponse{Matches: make([]RuleMatch, len(matches))}
	for i, m := range matches {
		resp.Matches[i] = RuleMatch{ID: m.ID, Text: m.Text, Score: m.Score}
	}
	if embedding, _, used := usage.Totals(); used {
		w.Header().Set(headerEmbeddingTokens, strconv.Itoa(embedding))
	}
	writeJSON(w, http.StatusOK, resp)
}

func paragraphCount(w http.ResponseWriter, r *http.Request) (int, bool) {
	var k int
	if err := runtime.BindQueryParameter("form", true, false, "paragraph_count", r.URL.Query(), &k); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "paragraph_count must be an integer")
		return 0, false
	}
	return k, true
}

// streamWriter commits the response on the first chunk and flushes
// every chunk to the client.
type streamWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	usage   *domain.TokenUsage
	started bool
}

func (s *streamWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Trailer", headerCompletionTokens)
	embedding, _, _ := s.usage.Totals()
	h.Set(headerEmbeddingTokens, strconv.Itoa(embedding))
	s.w.WriteHeader(http.StatusOK)
}

func (s *streamWriter) Write(p []byte) (int, error) {
	s.start()
	n, err := s.w.Write(p)
	if err != nil {
		return n, err //nolint:wrapcheck // surfaced through the completer
	}
	_ = s.rc.Flush()
	return n, nil
}
