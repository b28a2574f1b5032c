package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/mode"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
	"github.com/kailas-cloud/docdex/internal/domain/search/request"
)

// SearchResponse is one page of grouped search results.
type SearchResponse struct {
	Cards   []*document.Document `json:"cards"`
	Cursor  *string              `json:"cursor"`
	HasMore bool                 `json:"has_more"`
}

// PriceHistoryResponse lists daily prices of one printing, oldest first.
type PriceHistoryResponse struct {
	CardID string               `json:"card_id"`
	Prices []*document.Document `json:"prices"`
}

// OracleResponse lists every printing of an oracle card.
type OracleResponse struct {
	OracleID string               `json:"oracle_id"`
	Cards    []*document.Document `json:"cards"`
}

// SetsResponse lists set names.
type SetsResponse struct {
	Sets []string `json:"sets"`
}

// SearchCards handles GET /cards/search/{text}.
func (s *Server) SearchCards(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	params.Text = pathParam(r, "text")

	req, err := request.New(params, s.limits)
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}

	page, err := s.cards.Search(r.Context(), &req)
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}

	resp := SearchResponse{Cards: page.Items(), HasMore: page.HasMore()}
	if c := page.Cursor(); c != "" {
		resp.Cursor = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

// bindSearchParams reads the optional search filters. List parameters
// repeat the key (colors=R&colors=U).
func bindSearchParams(q url.Values) (request.Params, error) {
	var (
		p         request.Params
		lang      *string
		cursor    *string
		pageCount *int
		colorOp   *string
	)
	binds := []struct {
		name string
		dest any
	}{
		{"lang", &lang},
		{"cursor", &cursor},
		{"page_count", &pageCount},
		{"sets", &p.Sets},
		{"colors", &p.Colors},
		{"color_operator", &colorOp},
		{"cmc_min", &p.CMCMin},
		{"cmc_max", &p.CMCMax},
		{"types", &p.Types},
		{"rarities", &p.Rarities},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return request.Params{}, fmt.Errorf("invalid parameter %s: %w", b.name, err)
		}
	}

	if lang != nil {
		p.Lang = *lang
	}
	if cursor != nil {
		p.Cursor = *cursor
	}
	if pageCount != nil {
		p.PageSize = *pageCount
	}
	if colorOp != nil {
		p.ColorMode = mode.Mode(*colorOp)
	}
	// colors= with no value asks for colourless cards under exactly.
	if q.Has("colors") && p.Colors == nil {
		p.Colors = []string{}
	}
	return p, nil
}

// GetCard handles GET /cards/id/{id}.
func (s *Server) GetCard(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cards.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetPriceHistory handles GET /cards/id/{id}/prices.
func (s *Server) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid parameter limit")
		return
	}

	id := pathParam(r, "id")
	rows, err := s.cards.PriceHistory(r.Context(), id, limit)
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceHistoryResponse{CardID: id, Prices: rows})
}

// GetOracleCard handles GET /cards/oracle/{oracle_id}.
func (s *Server) GetOracleCard(w http.ResponseWriter, r *http.Request) {
	oracleID := pathParam(r, "oracle_id")
	docs, err := s.cards.GetByOracleID(r.Context(), oracleID)
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, OracleResponse{OracleID: oracleID, Cards: docs})
}

// GetNamedCard handles GET /cards/named/{name}.
func (s *Server) GetNamedCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doc, err := s.cards.GetByName(r.Context(), pathParam(r, "name"), q.Get("lang"), q.Get("set"))
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListSets handles GET /sets.
func (s *Server) ListSets(w http.ResponseWriter, r *http.Request) {
	sets, err := s.cards.ListSets(r.Context())
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, SetsResponse{Sets: sets})
}

// Aggregate handles POST /aggregate/{collection}. The body is a JSON array
// of stages; the reply is the resulting documents.
func (s *Server) Aggregate(w http.ResponseWriter, r *http.Request) {
	var body document.Value
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p, err := pipeline.Parse(body)
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}

	docs, err := s.cards.Aggregate(r.Context(), pathParam(r, "collection"), p)
	if err != nil {
		handleDomainError(r.Context(), w, err)
		return
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}
