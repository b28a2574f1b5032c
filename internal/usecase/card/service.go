// Package card answers card catalogue queries against the document store.
package card

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kailas-cloud/docdex/internal/db/memory"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/fold"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
	"github.com/kailas-cloud/docdex/internal/domain/search/request"
	"github.com/kailas-cloud/docdex/internal/domain/search/result"
	"github.com/kailas-cloud/docdex/internal/domain/search/score"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

// DefaultHistoryLimit caps price history when the caller sets no limit.
const DefaultHistoryLimit = 90

// Service handles card search and lookups.
type Service struct {
	store Store
}

// New creates a card service.
func New(store Store) *Service {
	return &Service{store: store}
}

// hideID drops the store's internal identity from returned documents.
var hideID = pipeline.NewProjection(pipeline.ProjectionField{Name: document.IDField, Mode: pipeline.Exclude})

// Search runs a relevance-ranked card search and returns one page of
// oracle cards, each holding its matching printings.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	if err := ctx.Err(); err != nil {
		return result.Page{}, err
	}
	start := time.Now()

	docs := s.cards().Aggregate(SearchPipeline(req))

	hasMore := len(docs) > req.PageSize()
	if hasMore {
		docs = docs[:req.PageSize()]
	}
	var cursor string
	if hasMore && len(docs) > 0 {
		cursor = cursorAfter(docs[len(docs)-1])
	}

	observe("search", start, len(docs))
	return result.NewPage(docs, cursor, hasMore), nil
}

func cursorAfter(last *document.Document) string {
	s, _ := last.Get(scoreField)
	f, _ := s.AsNumber()
	id, ok := last.Get(document.IDField)
	if !ok {
		id = document.Null()
	}
	return score.NewCursor(f, id).Encode()
}

// GetByID returns the printing with the given Scryfall id.
func (s *Service) GetByID(ctx context.Context, id string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	doc, ok := s.cards().FindOne(filter.New(filter.Eq(domain.CardIDField, id)), hideID)
	if !ok {
		observe("card", start, 0)
		return nil, fmt.Errorf("card %q: %w", id, domain.ErrCardNotFound)
	}
	observe("card", start, 1)
	return doc, nil
}

// GetByOracleID returns every printing of an oracle card, newest first.
func (s *Service) GetByOracleID(ctx context.Context, oracleID string) ([]*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	docs := s.cards().
		Find(filter.New(filter.Eq(domain.CardOracleIDField, oracleID)), hideID).
		Sort(pipeline.Desc(domain.CardReleasedField)).
		All()
	observe("oracle", start, len(docs))
	if len(docs) == 0 {
		return nil, fmt.Errorf("oracle id %q: %w", oracleID, domain.ErrCardNotFound)
	}
	return docs, nil
}

// GetByName returns the newest printing whose name matches ignoring case
// and diacritics. An empty lang means English; set narrows to one set code.
func (s *Service) GetByName(ctx context.Context, name, lang, set string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	if lang == "" {
		lang = request.DefaultLang
	}
	start := time.Now()

	f := filter.New(
		filter.Eq(domain.CardNameSearch, fold.Name(name)),
		filter.Eq(domain.CardLangField, lang),
	)
	if set != "" {
		f = f.And(filter.Eq(domain.CardSetField, set))
	}
	docs := s.cards().Find(f, hideID).Sort(pipeline.Desc(domain.CardReleasedField)).Limit(1).All()
	observe("named", start, len(docs))
	if len(docs) == 0 {
		return nil, fmt.Errorf("card named %q: %w", name, domain.ErrCardNotFound)
	}
	return docs[0], nil
}

// PriceHistory returns up to limit daily price rows for a card, oldest
// first, ending with the most recent one.
func (s *Service) PriceHistory(ctx context.Context, cardID string, limit int) ([]*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	start := time.Now()

	if s.cards().Count(filter.New(filter.Eq(domain.CardIDField, cardID))) == 0 {
		observe("prices", start, 0)
		return nil, fmt.Errorf("card %q: %w", cardID, domain.ErrCardNotFound)
	}

	rows := s.store.Collection(domain.PriceHistoryCollection).
		Find(filter.New(filter.Eq("card_id", cardID)), hideID).
		Sort(pipeline.Desc("date")).
		Limit(limit).
		All()
	slices.Reverse(rows)

	observe("prices", start, len(rows))
	return rows, nil
}

// ListSets returns distinct set names in descending order.
func (s *Service) ListSets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	groups := s.cards().Aggregate(setsPipeline())
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		id, _ := g.Get(document.IDField)
		if name, ok := id.AsString(); ok && name != "" {
			names = append(names, name)
		}
	}
	observe("sets", start, len(names))
	return names, nil
}

// Aggregate runs a caller-supplied pipeline over a named collection.
func (s *Service) Aggregate(ctx context.Context, collection string, p pipeline.Pipeline) ([]*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.store.Exists(collection) {
		return nil, fmt.Errorf("collection %q: %w", collection, domain.ErrCollectionNotFound)
	}
	start := time.Now()

	docs := s.store.Collection(collection).Aggregate(p)
	observe("aggregate", start, len(docs))
	return docs, nil
}

func (s *Service) cards() *memory.Collection { return s.store.Collection(domain.CardsCollection) }

func observe(op string, start time.Time, n int) {
	metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.QueryResults.WithLabelValues(op).Observe(float64(n))
}
