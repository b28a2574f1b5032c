package docdex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/db/memory"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
	"github.com/kailas-cloud/docdex/internal/domain/search/request"
	"github.com/kailas-cloud/docdex/internal/domain/search/result"
	"github.com/kailas-cloud/docdex/internal/repository/runlog"
	carduc "github.com/kailas-cloud/docdex/internal/usecase/card"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docdex/internal/usecase/ingest"
	"github.com/kailas-cloud/docdex/internal/usecase/provider"
	rulesuc "github.com/kailas-cloud/docdex/internal/usecase/rules"
)

const (
	providerName  = "sdk"
	providerModel = "external"
)

// Use cases the client delegates to.
type cardUseCase interface {
	Search(ctx context.Context, req *request.Request) (result.Page, error)
	GetByID(ctx context.Context, id string) (*document.Document, error)
	GetByOracleID(ctx context.Context, oracleID string) ([]*document.Document, error)
	GetByName(ctx context.Context, name, lang, set string) (*document.Document, error)
	PriceHistory(ctx context.Context, cardID string, limit int) ([]*document.Document, error)
	ListSets(ctx context.Context) ([]string, error)
	Aggregate(ctx context.Context, collection string, p pipeline.Pipeline) ([]*document.Document, error)
}

type ingestUseCase interface {
	Run(ctx context.Context) (domingest.Run, error)
	Recent(ctx context.Context, limit int) ([]domingest.Run, error)
	LastSuccess(ctx context.Context) (domingest.Run, bool, error)
}

type rulesUseCase interface {
	Index(ctx context.Context, paragraphs []rulesuc.Paragraph) error
	Search(ctx context.Context, question string, k int) ([]rulesuc.Match, error)
	Ask(ctx context.Context, question string, k int, w io.Writer) error
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the docdex SDK entry point. It is safe for concurrent use.
type Client struct {
	ledger    io.Closer
	cards     cardUseCase
	ingest    ingestUseCase
	snapshots *snapshotFetcher
	loadMu    sync.Mutex
	rules     rulesUseCase
	tracker   *provider.Tracker
	healthSvc healthUseCase
	limits    request.Limits
	obs       *observer
}

// New creates a Client with an empty catalogue.
// The provided context bounds opening the run ledger.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		defaultPageSize: request.DefaultPageSize,
		maxPageSize:     request.MaxPageSize,
		ledgerPath:      runlog.MemoryPath,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if (cfg.embedder == nil) != (cfg.completer == nil) {
		return nil, errors.New("docdex: rules need both an embedder and a completer")
	}

	ledger, err := runlog.Open(cfg.ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("docdex: open ledger: %w", err)
	}
	if err := ledger.Ping(ctx); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("docdex: ledger not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}
	return wireClient(ledger, cfg, obs), nil
}

func wireClient(ledger *runlog.Store, cfg *clientConfig, obs *observer) *Client {
	nop := zap.NewNop()
	store := memory.New(memory.WithIDGenerator(uuid.NewString))
	snapshots := &snapshotFetcher{}
	tracker := provider.NewTracker(providerName, cfg.dailyTokens, cfg.monthlyTokens, provider.BudgetActionReject, nop)

	health := healthuc.New().
		WithPinger("ledger", ledger, true).
		WithNonEmpty("catalog", false, store.Collection(domain.CardsCollection), domain.ErrNoCards)

	c := &Client{
		ledger:    ledger,
		cards:     carduc.New(store),
		ingest:    ingestuc.New(snapshots, ledger, store, nop),
		snapshots: snapshots,
		tracker:   tracker,
		healthSvc: health,
		limits:    request.Limits{DefaultPageSize: cfg.defaultPageSize, MaxPageSize: cfg.maxPageSize},
		obs:       obs,
	}

	if cfg.embedder != nil {
		embedder := provider.NewInstrumentedEmbedder(&embedderAdapter{inner: cfg.embedder}, providerName, providerModel, tracker, nop)
		completer := provider.NewInstrumentedCompleter(&completerAdapter{inner: cfg.completer}, providerName, providerModel, tracker, nop)
		rules := rulesuc.New(store, embedder, embedder, completer, nop).
			WithSystemPrompt(cfg.systemPrompt).
			WithTopK(cfg.topK)
		health.WithNonEmpty("rules", false, rules, domain.ErrNoRules)
		c.rules = rules
	}
	return c
}

// Close releases the run ledger.
func (c *Client) Close() error {
	if c.ledger == nil {
		return nil
	}
	if err := c.ledger.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

// Usage returns the provider token budget. Limits are zero when unlimited.
func (c *Client) Usage() BudgetStatus {
	s := c.tracker.Status()
	return BudgetStatus{
		DailyLimit:     s.DailyLimit,
		DailyUsed:      s.DailyUsed,
		MonthlyLimit:   s.MonthlyLimit,
		MonthlyUsed:    s.MonthlyUsed,
		IsExhausted:    s.Exhausted,
		DailyResetsAt:  s.DailyResetsAt,
		MonthlyResetAt: s.MonthlyResetAt,
	}
}

// snapshotFetcher hands the ingest service the snapshot prepared by
// LoadCards.
type snapshotFetcher struct {
	mu   sync.Mutex
	snap domingest.Snapshot
	err  error
}

func (f *snapshotFetcher) set(snap domingest.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = snap, err
}

func (f *snapshotFetcher) Fetch(context.Context) (domingest.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.snap, f.err
	f.snap, f.err = domingest.Snapshot{}, nil
	return snap, err
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// completerAdapter wraps public Completer to satisfy internal domain.Completer.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(
	ctx context.Context, msgs []domain.Message, onDelta func(string) error,
) (domain.CompletionUsage, error) {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	u, err := a.inner.Complete(ctx, out, onDelta)
	usage := domain.CompletionUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if err != nil {
		return usage, fmt.Errorf("%w: %w", domain.ErrCompletionProviderError, err)
	}
	return usage, nil
}

func today() string { return time.Now().UTC().Format(time.DateOnly) }
