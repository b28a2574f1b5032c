package docdex

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const bulkExport = `[
 {"id": "c1", "oracle_id": "o-bolt", "name": "Lightning Bolt", "lang": "en", "set": "lea", "set_name": "Alpha",
  "oracle_text": "Lightning Bolt deals 3 damage to any target.", "colors": ["R"], "cmc": 1,
  "type_line": "Instant", "rarity": "common", "released_at": "1993-08-05", "prices": {"usd": "410.50"}},
 {"id": "c2", "oracle_id": "o-bolt", "name": "Lightning Bolt", "lang": "en", "set": "m10", "set_name": "Magic 2010",
  "oracle_text": "Lightning Bolt deals 3 damage to any target.", "colors": ["R"], "cmc": 1,
  "type_line": "Instant", "rarity": "common", "released_at": "2009-07-17", "prices": {"usd": "1.20"}},
 {"id": "c3", "oracle_id": "o-helix", "name": "Lightning Helix", "lang": "en", "set": "rav", "set_name": "Ravnica",
  "oracle_text": "Lightning Helix deals 3 damage to any target and you gain 3 life.", "colors": ["R", "W"], "cmc": 2,
  "type_line": "Instant", "rarity": "uncommon", "released_at": "2005-10-07", "prices": {"usd": null}}
]`

const rulesText = `702.19b Trample lets excess combat damage through to the player.

702.2b Deathtouch makes any damage lethal.

702.9a Flying is an evasion ability.`

// keywordEmbedder scores texts on fixed keyword axes.
type keywordEmbedder struct{ calls int }

func (e *keywordEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	e.calls++
	axes := []string{"trample", "deathtouch", "flying"}
	v := make([]float32, len(axes))
	for i, a := range axes {
		if strings.Contains(strings.ToLower(text), a) {
			v[i] = 1
		}
	}
	return EmbeddingResult{Embedding: v, PromptTokens: 5, TotalTokens: 5}, nil
}

type scriptedCompleter struct {
	msgs []Message
	err  error
}

func (c *scriptedCompleter) Complete(_ context.Context, msgs []Message, onDelta func(string) error) (CompletionUsage, error) {
	c.msgs = msgs
	if c.err != nil {
		return CompletionUsage{}, c.err
	}
	for _, d := range []string{"Yes, ", "assign lethal damage first."} {
		if err := onDelta(d); err != nil {
			return CompletionUsage{}, err
		}
	}
	return CompletionUsage{PromptTokens: 30, CompletionTokens: 10, TotalTokens: 40}, nil
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	client, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func loadedClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	client := newTestClient(t, opts...)
	if _, err := client.LoadCards(context.Background(), "2024-05-01", strings.NewReader(bulkExport)); err != nil {
		t.Fatalf("LoadCards: %v", err)
	}
	return client
}

func TestNew_RulesNeedBothProviders(t *testing.T) {
	if _, err := New(context.Background(), WithRules(&keywordEmbedder{}, nil)); err == nil {
		t.Fatal("expected error for embedder without completer")
	}
}

func TestLoadCards(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	run, err := client.LoadCards(ctx, "2024-05-01", strings.NewReader(bulkExport))
	if err != nil {
		t.Fatalf("LoadCards: %v", err)
	}
	if run.Status != "succeeded" || run.Inserted != 3 || run.SnapshotDate != "2024-05-01" {
		t.Errorf("run = %+v", run)
	}

	run, err = client.LoadCards(ctx, "2024-05-01", strings.NewReader(bulkExport))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if run.Unchanged != 3 || run.Inserted != 0 {
		t.Errorf("reload run = %+v", run)
	}

	runs, err := client.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != run.ID {
		t.Errorf("runs = %+v", runs)
	}
	last, ok, err := client.LastSuccess(ctx)
	if err != nil || !ok || last.ID != run.ID {
		t.Errorf("LastSuccess = %+v, %v, %v", last, ok, err)
	}
}

func TestLoadCards_Failures(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	run, err := client.LoadCards(ctx, "", strings.NewReader(`{"not": "an array"}`))
	if !errors.Is(err, ErrIngestFetch) {
		t.Fatalf("err = %v, want ErrIngestFetch", err)
	}
	if run.Status != "failed" || run.Error == "" {
		t.Errorf("run = %+v", run)
	}

	if _, err := client.LoadCards(ctx, "05/01/2024", strings.NewReader(bulkExport)); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad date err = %v", err)
	}

	if _, ok, _ := client.LastSuccess(ctx); ok {
		t.Error("no run should have succeeded")
	}
}

func TestSearch(t *testing.T) {
	client := loadedClient(t)
	ctx := context.Background()

	page, err := client.Search(ctx, SearchParams{Text: "lightning"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Cards) != 2 || page.Cards[0]["_id"] != "o-bolt" || page.HasMore {
		t.Fatalf("page = %+v", page)
	}

	page, err = client.Search(ctx, SearchParams{Text: "lightning", Colors: []string{"R", "W"}, ColorMode: ColorsExactly})
	if err != nil {
		t.Fatalf("Search exactly: %v", err)
	}
	if len(page.Cards) != 1 || page.Cards[0]["_id"] != "o-helix" {
		t.Errorf("exactly page = %+v", page)
	}

	first, err := client.Search(ctx, SearchParams{Text: "lightning", PageSize: 1})
	if err != nil || !first.HasMore || first.Cursor == "" {
		t.Fatalf("first page = %+v, %v", first, err)
	}
	second, err := client.Search(ctx, SearchParams{Text: "lightning", PageSize: 1, Cursor: first.Cursor})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Cards) != 1 || second.Cards[0]["_id"] != "o-helix" || second.HasMore {
		t.Errorf("second page = %+v", second)
	}
}

func TestSearch_Invalid(t *testing.T) {
	client := loadedClient(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params SearchParams
		want   error
	}{
		{"empty text", SearchParams{}, ErrInvalidRequest},
		{"bad colour mode", SearchParams{Text: "bolt", ColorMode: "xor"}, ErrInvalidRequest},
		{"bad cursor", SearchParams{Text: "bolt", Cursor: "%%%"}, ErrInvalidCursor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Search(ctx, tt.params); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLookups(t *testing.T) {
	client := loadedClient(t)
	ctx := context.Background()

	card, err := client.Card(ctx, "c1")
	if err != nil || card["name"] != "Lightning Bolt" || card["name_search"] != "lightning bolt" {
		t.Errorf("Card = %v, %v", card, err)
	}
	if _, err := client.Card(ctx, "nope"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("missing card err = %v", err)
	}

	printings, err := client.Printings(ctx, "o-bolt")
	if err != nil || len(printings) != 2 {
		t.Errorf("Printings = %v, %v", printings, err)
	}

	named, err := client.Named(ctx, "LIGHTNING helix", "", "")
	if err != nil || named["id"] != "c3" {
		t.Errorf("Named = %v, %v", named, err)
	}

	rows, err := client.PriceHistory(ctx, "c1", 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("PriceHistory = %v, %v", rows, err)
	}
	prices, _ := rows[0]["prices"].(map[string]any)
	if prices["usd"] != 410.5 {
		t.Errorf("usd = %v", prices["usd"])
	}

	sets, err := client.Sets(ctx)
	if err != nil || strings.Join(sets, ",") != "Ravnica,Magic 2010,Alpha" {
		t.Errorf("Sets = %v, %v", sets, err)
	}
}

func TestAggregate(t *testing.T) {
	client := loadedClient(t)
	ctx := context.Background()

	out, err := client.Aggregate(ctx, "cards",
		[]byte(`[{"$group": {"_id": "$rarity", "n": {"$sum": 1}}}, {"$sort": {"_id": 1}}]`))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(out) != 2 || out[0]["_id"] != "common" || out[0]["n"] != float64(2) {
		t.Errorf("groups = %v", out)
	}

	if _, err := client.Aggregate(ctx, "decks", []byte(`[]`)); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("unknown collection err = %v", err)
	}
	if _, err := client.Aggregate(ctx, "cards", []byte(`{"$match": {}}`)); !errors.Is(err, ErrInvalidPipeline) {
		t.Errorf("object pipeline err = %v", err)
	}
	if _, err := client.Aggregate(ctx, "cards", []byte(`[{`)); !errors.Is(err, ErrInvalidPipeline) {
		t.Errorf("bad JSON err = %v", err)
	}
}

func TestRules(t *testing.T) {
	embedder := &keywordEmbedder{}
	completer := &scriptedCompleter{}
	client := newTestClient(t, WithRules(embedder, completer), WithTokenBudget(1000, 0), WithSystemPrompt("Be brief."))
	ctx := context.Background()

	if _, err := client.SearchRules(ctx, "trample?", 1); !errors.Is(err, ErrNoRules) {
		t.Fatalf("before indexing err = %v", err)
	}
	if err := client.IndexRules(ctx, strings.NewReader(rulesText)); err != nil {
		t.Fatalf("IndexRules: %v", err)
	}

	matches, err := client.SearchRules(ctx, "How does trample work?", 1)
	if err != nil {
		t.Fatalf("SearchRules: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "702.19b" {
		t.Errorf("matches = %+v", matches)
	}

	var answer bytes.Buffer
	if err := client.Ruling(ctx, "Trample with deathtouch?", 2, &answer); err != nil {
		t.Fatalf("Ruling: %v", err)
	}
	if answer.String() != "Yes, assign lethal damage first." {
		t.Errorf("answer = %q", answer.String())
	}
	if len(completer.msgs) == 0 || completer.msgs[0].Role != "system" || completer.msgs[0].Content != "Be brief." {
		t.Errorf("messages = %+v", completer.msgs)
	}

	usage := client.Usage()
	if usage.DailyLimit != 1000 || usage.DailyUsed == 0 || usage.IsExhausted {
		t.Errorf("usage = %+v", usage)
	}
}

func TestRules_CompletionFailure(t *testing.T) {
	client := newTestClient(t, WithRules(&keywordEmbedder{}, &scriptedCompleter{err: errors.New("upstream 500")}))
	ctx := context.Background()
	if err := client.IndexRules(ctx, strings.NewReader(rulesText)); err != nil {
		t.Fatalf("IndexRules: %v", err)
	}
	if err := client.Ruling(ctx, "flying?", 1, io.Discard); !errors.Is(err, ErrCompletionProviderError) {
		t.Errorf("err = %v, want ErrCompletionProviderError", err)
	}
}

func TestRules_Disabled(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if err := client.IndexRules(ctx, strings.NewReader(rulesText)); !errors.Is(err, ErrRulesDisabled) {
		t.Errorf("IndexRules err = %v", err)
	}
	if _, err := client.SearchRules(ctx, "q", 1); !errors.Is(err, ErrRulesDisabled) {
		t.Errorf("SearchRules err = %v", err)
	}
	if err := client.Ruling(ctx, "q", 1, io.Discard); !errors.Is(err, ErrRulesDisabled) {
		t.Errorf("Ruling err = %v", err)
	}
}

func TestHealth(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	h := client.Health(ctx)
	if h.Status != "degraded" || h.Checks["catalog"] != "error" || h.Checks["ledger"] != "ok" {
		t.Errorf("empty health = %+v", h)
	}
	if _, err := client.LoadCards(ctx, "2024-05-01", strings.NewReader(bulkExport)); err != nil {
		t.Fatalf("LoadCards: %v", err)
	}
	if h := client.Health(ctx); h.Status != "ok" {
		t.Errorf("loaded health = %+v", h)
	}
}

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := loadedClient(t, WithPrometheus(reg), WithLogger(logger))
	ctx := context.Background()

	_, _ = client.Card(ctx, "c1")
	_, _ = client.Card(ctx, "missing")

	n, err := testutil.GatherAndCount(reg, "docdex_sdk_operations_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// load_cards/ok, card/ok, card/error
	if n != 3 {
		t.Errorf("operation series = %d, want 3", n)
	}

	// A second client on the same registry reuses the collectors.
	second, err := New(ctx, WithPrometheus(reg))
	if err != nil {
		t.Fatalf("second client: %v", err)
	}
	_ = second.Close()
}

func TestObserver_Tokens(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := newTestClient(t, WithRules(&keywordEmbedder{}, &scriptedCompleter{}), WithPrometheus(reg))
	ctx := context.Background()

	if err := client.IndexRules(ctx, strings.NewReader(rulesText)); err != nil {
		t.Fatalf("IndexRules: %v", err)
	}
	if err := client.Ruling(ctx, "Does trample work?", 1, io.Discard); err != nil {
		t.Fatalf("Ruling: %v", err)
	}

	tokens := client.obs.metrics.tokens
	if got := testutil.ToFloat64(tokens.WithLabelValues("completion")); got != 40 {
		t.Errorf("completion tokens = %v, want 40", got)
	}
	if got := testutil.ToFloat64(tokens.WithLabelValues("embedding")); got <= 0 {
		t.Errorf("embedding tokens = %v, want > 0", got)
	}
}
