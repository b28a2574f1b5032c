package docdex

import (
	"context"
	"fmt"
	"io"
	"time"

	rulesuc "github.com/kailas-cloud/docdex/internal/usecase/rules"
)

// IndexRules embeds a plain-text rules document, one paragraph per
// blank-line separated block, replacing any previously indexed rules.
func (c *Client) IndexRules(ctx context.Context, r io.Reader) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("index_rules", start, err) }()

	if c.rules == nil {
		return ErrRulesDisabled
	}
	ctx, report := c.obs.metered(ctx)
	defer report()

	paragraphs, err := rulesuc.Split(r)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	if err := c.rules.Index(ctx, paragraphs); err != nil {
		return fmt.Errorf("index rules: %w", err)
	}
	return nil
}

// SearchRules returns the k rule paragraphs closest to question, best
// first. k <= 0 uses the configured default.
func (c *Client) SearchRules(ctx context.Context, question string, k int) (matches []RuleMatch, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search_rules", start, err) }()

	if c.rules == nil {
		return nil, ErrRulesDisabled
	}
	ctx, report := c.obs.metered(ctx)
	defer report()

	out, err := c.rules.Search(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("search rules: %w", err)
	}
	matches = make([]RuleMatch, len(out))
	for i, m := range out {
		matches[i] = RuleMatch{ID: m.ID, Text: m.Text, Score: m.Score}
	}
	return matches, nil
}

// Ruling answers question from the k closest rule paragraphs, writing the
// answer to w as it is generated.
func (c *Client) Ruling(ctx context.Context, question string, k int, w io.Writer) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ruling", start, err) }()

	if c.rules == nil {
		return ErrRulesDisabled
	}
	ctx, report := c.obs.metered(ctx)
	defer report()

	if err := c.rules.Ask(ctx, question, k, w); err != nil {
		return fmt.Errorf("ruling: %w", err)
	}
	return nil
}
