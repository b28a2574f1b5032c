package chi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/db/memory"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
	carduc "github.com/kailas-cloud/docdex/internal/usecase/card"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docdex/internal/usecase/ingest"
	"github.com/kailas-cloud/docdex/internal/usecase/provider"
	rulesuc "github.com/kailas-cloud/docdex/internal/usecase/rules"
)

const fixtureCards = `[
 {"id": "c1", "oracle_id": "o-bolt", "name": "Lightning Bolt", "name_search": "lightning bolt", "lang": "en",
  "set": "lea", "set_name": "Alpha", "oracle_text": "Lightning Bolt deals 3 damage to any target.",
  "colors": ["R"], "cmc": 1, "type_line": "Instant", "rarity": "common", "released_at": "1993-08-05",
  "image_uris": {"small": "s1", "large": "l1", "png": "p1"}},
 {"id": "c2", "oracle_id": "o-bolt", "name": "Lightning Bolt", "name_search": "lightning bolt", "lang": "en",
  "set": "m10", "set_name": "Magic 2010", "oracle_text": "Lightning Bolt deals 3 damage to any target.",
  "colors": ["R"], "cmc": 1, "type_line": "Instant", "rarity": "common", "released_at": "2009-07-17"},
 {"id": "c3", "oracle_id": "o-helix", "name": "Lightning Helix", "name_search": "lightning helix", "lang": "en",
  "set": "rav", "set_name": "Ravnica", "oracle_text": "Lightning Helix deals 3 damage to any target and you gain 3 life.",
  "colors": ["R", "W"], "cmc": 2, "type_line": "Instant", "rarity": "uncommon", "released_at": "2005-10-07"},
 {"id": "c4", "oracle_id": "o-ball", "name": "Ball Lightning", "name_search": "ball lightning", "lang": "en",
  "set": "drk", "set_name": "The Dark", "oracle_text": "Trample, haste",
  "colors": ["R"], "cmc": 3, "type_line": "Creature — Elemental", "rarity": "rare", "released_at": "1994-08-01"},
 {"id": "c6", "oracle_id": "o-thopter", "name": "Ornithopter", "name_search": "ornithopter", "lang": "en",
  "set": "atq", "set_name": "Antiquities", "oracle_text": "Flying",
  "colors": [], "cmc": 0, "type_line": "Artifact Creature — Thopter", "rarity": "uncommon", "released_at": "1994-03-01"}
]`

const fixturePrices = `[
 {"date": "2024-05-01", "card_id": "c1", "prices": {"usd": 410.5}},
 {"date": "2024-05-02", "card_id": "c1", "prices": {"usd": 415}},
 {"date": "2024-05-03", "card_id": "c1", "prices": {"usd": null}}
]`

// --- Mocks ---

type staticFetcher struct {
	snap  domingest.Snapshot
	err   error
	block chan struct{}
}

func (f *staticFetcher) Fetch(ctx context.Context) (domingest.Snapshot, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domingest.Snapshot{}, ctx.Err()
		}
	}
	return f.snap, f.err
}

type memoryLedger struct {
	mu   sync.Mutex
	runs []domingest.Run
}

func (l *memoryLedger) Start(_ context.Context, run domingest.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func (l *memoryLedger) Finish(_ context.Context, run domingest.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.runs {
		if l.runs[i].ID == run.ID {
			l.runs[i] = run
			return nil
		}
	}
	return errors.New("unknown run")
}

func (l *memoryLedger) Recent(_ context.Context, limit int) ([]domingest.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domingest.Run
	for i := len(l.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.runs[i])
	}
	return out, nil
}

func (l *memoryLedger) LastSuccess(_ context.Context) (domingest.Run, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.runs) - 1; i >= 0; i-- {
		if l.runs[i].Status == domingest.StatusSucceeded {
			return l.runs[i], true, nil
		}
	}
	return domingest.Run{}, false, nil
}

// keywordEmbedder scores texts on fixed keyword axes.
type keywordEmbedder struct{ err error }

var axes = []string{"trample", "deathtouch", "flying"}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	v := make([]float32, len(axes))
	for i, a := range axes {
		if strings.Contains(strings.ToLower(text), a) {
			v[i] = 1
		}
	}
	domain.UsageFromContext(ctx).AddEmbedding(4)
	return domain.EmbeddingResult{Embedding: v, PromptTokens: 4, TotalTokens: 4}, nil
}

type scriptedCompleter struct {
	chunks []string
	err    error
}

func (c *scriptedCompleter) Complete(ctx context.Context, _ []domain.Message, onDelta func(string) error) (domain.CompletionUsage, error) {
	for _, ch := range c.chunks {
		if err := onDelta(ch); err != nil {
			return domain.CompletionUsage{}, err
		}
	}
	if c.err != nil {
		return domain.CompletionUsage{}, c.err
	}
	domain.UsageFromContext(ctx).AddCompletion(12)
	return domain.CompletionUsage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52}, nil
}

// --- Fixtures ---

type testEnv struct {
	server    *Server
	handler   http.Handler
	store     *memory.Store
	fetcher   *staticFetcher
	ledger    *memoryLedger
	ingest    *ingestuc.Service
	rules     *rulesuc.Service
	dnd       *rulesuc.Service
	embedder  *keywordEmbedder
	completer *scriptedCompleter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	load(t, store, domain.CardsCollection, fixtureCards)
	load(t, store, domain.PriceHistoryCollection, fixturePrices)

	env := &testEnv{
		store:     store,
		fetcher:   &staticFetcher{snap: domingest.Snapshot{Date: "2024-05-04"}},
		ledger:    &memoryLedger{},
		embedder:  &keywordEmbedder{},
		completer: &scriptedCompleter{chunks: []string{"Yes, ", "assign lethal damage."}},
	}
	logger := zap.NewNop()
	env.ingest = ingestuc.New(env.fetcher, env.ledger, store, logger).WithTimeout(5 * time.Second)
	env.rules = rulesuc.New(store, env.embedder, env.embedder, env.completer, logger)
	env.dnd = rulesuc.New(store, env.embedder, env.embedder, env.completer, logger).
		WithCollection(domain.DnDRulesCollection).
		WithSystemPrompt(rulesuc.DnDSystemPrompt)

	health := healthuc.New().WithCheck("catalog", true, func(context.Context) error {
		if store.Collection(domain.CardsCollection).Len() == 0 {
			return errors.New("empty catalogue")
		}
		return nil
	})
	tracker := provider.NewTracker("test", 1000, 0, provider.BudgetActionReject, logger)

	env.server = NewServer(carduc.New(store), health, logger).
		WithIngest(env.ingest).
		WithRules(env.rules).
		WithDnDRules(env.dnd).
		WithBudget(tracker)
	env.handler = env.server.Routes()
	return env
}

func (e *testEnv) indexRules(t *testing.T) {
	t.Helper()
	paragraphs := []rulesuc.Paragraph{
		{ID: "702.19b", Text: "702.19b Trample lets excess damage through."},
		{ID: "702.2b", Text: "702.2b Deathtouch damage is lethal."},
		{ID: "702.9a", Text: "702.9a Flying is an evasion ability."},
	}
	if err := e.rules.Index(context.Background(), paragraphs); err != nil {
		t.Fatalf("index rules: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func load(t *testing.T, store *memory.Store, collection, raw string) {
	t.Helper()
	col := store.Collection(collection)
	err := document.DecodeArray(strings.NewReader(raw), func(d *document.Document) error {
		col.Insert(d)
		return nil
	})
	if err != nil {
		t.Fatalf("load %s: %v", collection, err)
	}
}
