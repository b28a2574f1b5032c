package docdex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
)

// LoadCards reads a bulk card export (a JSON array of card objects) and
// merges it into the catalogue, recording the load in the run ledger.
// date (YYYY-MM-DD) keys the daily price rows; empty means today in UTC.
// Loads are serialized.
func (c *Client) LoadCards(ctx context.Context, date string, r io.Reader) (run Run, err error) {
	start := time.Now()
	defer func() { c.obs.observe("load_cards", start, err) }()

	if date == "" {
		date = today()
	} else if _, perr := time.Parse(time.DateOnly, date); perr != nil {
		return Run{}, domain.NewValidationError("date", "must be YYYY-MM-DD")
	}

	snap := domingest.Snapshot{Date: date}
	decodeErr := document.DecodeArray(r, func(d *document.Document) error {
		snap.Records = append(snap.Records, d)
		return nil
	})
	if decodeErr != nil {
		decodeErr = fmt.Errorf("%w: %w", domain.ErrIngestFetch, decodeErr)
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	c.snapshots.set(snap, decodeErr)
	res, err := c.ingest.Run(ctx)
	if err != nil {
		return toRun(res), fmt.Errorf("load cards: %w", err)
	}
	return toRun(res), nil
}

// Runs returns the latest ledger entries, newest first.
func (c *Client) Runs(ctx context.Context, limit int) (runs []Run, err error) {
	start := time.Now()
	defer func() { c.obs.observe("runs", start, err) }()

	out, err := c.ingest.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	runs = make([]Run, len(out))
	for i, r := range out {
		runs[i] = toRun(r)
	}
	return runs, nil
}

// LastSuccess returns the most recent successful load, if any.
func (c *Client) LastSuccess(ctx context.Context) (Run, bool, error) {
	r, ok, err := c.ingest.LastSuccess(ctx)
	if err != nil {
		return Run{}, false, fmt.Errorf("last success: %w", err)
	}
	return toRun(r), ok, nil
}
