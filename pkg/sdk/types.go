package docdex

import (
	"time"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
)

// Document is a stored document decoded to plain Go values: strings,
// float64, bool, nil, []any and map[string]any.
type Document = map[string]any

// ColorMode controls how the colours of a search combine.
type ColorMode string

// ColorMode constants.
const (
	ColorsOr      ColorMode = "or"
	ColorsAnd     ColorMode = "and"
	ColorsExactly ColorMode = "exactly"
)

// SearchParams describes a card search. Only Text is required.
type SearchParams struct {
	Text      string
	Lang      string // default "en"
	Cursor    string // from the previous page
	PageSize  int
	Sets      []string
	Colors    []string
	ColorMode ColorMode // default ColorsOr
	CMCMin    *float64
	CMCMax    *float64
	Types     []string
	Rarities  []string
}

// SearchPage is one page of search results, one card per oracle id.
type SearchPage struct {
	Cards   []Document
	Cursor  string // empty on the last page
	HasMore bool
}

// Run is one snapshot load as recorded in the ledger.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       string // "running", "succeeded", "failed"
	SnapshotDate string
	Inserted     int
	Updated      int
	Unchanged    int
	Failed       int
	History      int
	Error        string
}

// RuleMatch is a rules paragraph with its similarity to a question.
type RuleMatch struct {
	ID    string
	Text  string
	Score float64
}

// BudgetStatus tracks the provider token budget.
type BudgetStatus struct {
	DailyLimit     int64
	DailyUsed      int64
	MonthlyLimit   int64
	MonthlyUsed    int64
	IsExhausted    bool
	DailyResetsAt  time.Time
	MonthlyResetAt time.Time
}

func toDocuments(docs []*document.Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d.Map()
	}
	return out
}

func toRun(r domingest.Run) Run {
	return Run{
		ID:           r.ID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Status:       string(r.Status),
		SnapshotDate: r.SnapshotDate,
		Inserted:     r.Counts.Inserted,
		Updated:      r.Counts.Updated,
		Unchanged:    r.Counts.Unchanged,
		Failed:       r.Counts.Failed,
		History:      r.Counts.History,
		Error:        r.Error,
	}
}
