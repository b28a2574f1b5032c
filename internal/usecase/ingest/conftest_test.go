package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/db/memory"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
)

// --- Fetcher mock ---

type mockFetcher struct {
	fn    func(ctx context.Context) (domingest.Snapshot, error)
	calls int
}

func (m *mockFetcher) Fetch(ctx context.Context) (domingest.Snapshot, error) {
	m.calls++
	return m.fn(ctx)
}

func staticFetcher(t *testing.T, date, records string) *mockFetcher {
	t.Helper()
	return &mockFetcher{fn: func(context.Context) (domingest.Snapshot, error) {
		return snapshot(t, date, records), nil
	}}
}

func snapshot(t *testing.T, date, records string) domingest.Snapshot {
	t.Helper()
	var docs []*document.Document
	if err := document.DecodeArray(strings.NewReader(records), func(d *document.Document) error {
		docs = append(docs, d)
		return nil
	}); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	return domingest.Snapshot{Date: date, Records: docs}
}

// --- Ledger mock ---

type mockLedger struct {
	mu       sync.Mutex
	runs     map[string]domingest.Run
	order    []string
	startErr error
	finishes int
}

func newMockLedger() *mockLedger {
	return &mockLedger{runs: make(map[string]domingest.Run)}
}

func (m *mockLedger) Start(_ context.Context, run domingest.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	return nil
}

func (m *mockLedger) Finish(_ context.Context, run domingest.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return errors.New("unknown run")
	}
	m.runs[run.ID] = run
	m.finishes++
	return nil
}

func (m *mockLedger) Recent(_ context.Context, limit int) ([]domingest.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domingest.Run
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[m.order[i]])
	}
	return out, nil
}

func (m *mockLedger) LastSuccess(_ context.Context) (domingest.Run, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		if r := m.runs[m.order[i]]; r.Status == domingest.StatusSucceeded {
			return r, true, nil
		}
	}
	return domingest.Run{}, false, nil
}

func (m *mockLedger) get(id string) domingest.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// --- helpers ---

func newTestService(f Fetcher, ledger Ledger) (*Service, *memory.Store) {
	store := memory.New()
	seq := 0
	svc := New(f, ledger, store, zap.NewNop()).
		WithClock(func() time.Time { return time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC) }).
		WithIDGenerator(func() string {
			seq++
			return "run-" + string(rune('0'+seq))
		})
	return svc, store
}
