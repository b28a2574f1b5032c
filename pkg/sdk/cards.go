package docdex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/mode"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
	"github.com/kailas-cloud/docdex/internal/domain/search/request"
)

// Search runs a relevance-ranked card search. Pass the returned cursor
// back in SearchParams.Cursor to read the next page.
func (c *Client) Search(ctx context.Context, p SearchParams) (page SearchPage, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	req, err := request.New(request.Params{
		Text:      p.Text,
		Lang:      p.Lang,
		Cursor:    p.Cursor,
		PageSize:  p.PageSize,
		Sets:      p.Sets,
		Colors:    p.Colors,
		ColorMode: mode.Mode(p.ColorMode),
		CMCMin:    p.CMCMin,
		CMCMax:    p.CMCMax,
		Types:     p.Types,
		Rarities:  p.Rarities,
	}, c.limits)
	if err != nil {
		return SearchPage{}, fmt.Errorf("search: %w", err)
	}

	res, err := c.cards.Search(ctx, &req)
	if err != nil {
		return SearchPage{}, fmt.Errorf("search: %w", err)
	}
	return SearchPage{
		Cards:   toDocuments(res.Items()),
		Cursor:  res.Cursor(),
		HasMore: res.HasMore(),
	}, nil
}

// Card returns one printing by its id.
func (c *Client) Card(ctx context.Context, id string) (doc Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("card", start, err) }()

	d, err := c.cards.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("card %s: %w", id, err)
	}
	return d.Map(), nil
}

// Printings returns every printing sharing an oracle id.
func (c *Client) Printings(ctx context.Context, oracleID string) (docs []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("printings", start, err) }()

	out, err := c.cards.GetByOracleID(ctx, oracleID)
	if err != nil {
		return nil, fmt.Errorf("printings %s: %w", oracleID, err)
	}
	return toDocuments(out), nil
}

// Named looks a card up by name, ignoring case and accents. Empty lang
// means English; empty set picks the most recent printing.
func (c *Client) Named(ctx context.Context, name, lang, set string) (doc Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("named", start, err) }()

	d, err := c.cards.GetByName(ctx, name, lang, set)
	if err != nil {
		return nil, fmt.Errorf("named %q: %w", name, err)
	}
	return d.Map(), nil
}

// PriceHistory returns up to limit daily price rows of a card, oldest
// first and ending with the latest. A non-positive limit uses the default
// of the card service.
func (c *Client) PriceHistory(ctx context.Context, cardID string, limit int) (rows []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("price_history", start, err) }()

	out, err := c.cards.PriceHistory(ctx, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("price history %s: %w", cardID, err)
	}
	return toDocuments(out), nil
}

// Sets returns the distinct set names in the catalogue.
func (c *Client) Sets(ctx context.Context) (sets []string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("sets", start, err) }()

	sets, err = c.cards.ListSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("sets: %w", err)
	}
	return sets, nil
}

// Aggregate runs a JSON aggregation pipeline, e.g.
// [{"$match": {"set": "lea"}}, {"$group": {"_id": "$rarity", "n": {"$sum": 1}}}],
// over one collection.
func (c *Client) Aggregate(ctx context.Context, collection string, pipelineJSON []byte) (docs []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("aggregate", start, err) }()

	var spec document.Value
	if err := json.Unmarshal(pipelineJSON, &spec); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPipeline, err)
	}
	p, err := pipeline.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	out, err := c.cards.Aggregate(ctx, collection, p)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	return toDocuments(out), nil
}
