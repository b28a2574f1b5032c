package ingest

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/db/memory"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
)

// Fetcher downloads a complete bulk snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (domingest.Snapshot, error)
}

// Ledger records ingestion runs.
type Ledger interface {
	Start(ctx context.Context, run domingest.Run) error
	Finish(ctx context.Context, run domingest.Run) error
	Recent(ctx context.Context, limit int) ([]domingest.Run, error)
	LastSuccess(ctx context.Context) (domingest.Run, bool, error)
}

// Store resolves collections of the document store.
type Store interface {
	Collection(name string) *memory.Collection
}
