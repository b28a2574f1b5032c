package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/config"
	"github.com/kailas-cloud/docdex/internal/db/memory"
	dbRedis "github.com/kailas-cloud/docdex/internal/db/redis"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/docdex/internal/logger"
	"github.com/kailas-cloud/docdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/docdex/internal/repository/budget"
	"github.com/kailas-cloud/docdex/internal/repository/embcache"
	"github.com/kailas-cloud/docdex/internal/repository/runlog"
	chiTransport "github.com/kailas-cloud/docdex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/docdex/internal/transport/openai"
	"github.com/kailas-cloud/docdex/internal/transport/scryfall"
	carduc "github.com/kailas-cloud/docdex/internal/usecase/card"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docdex/internal/usecase/ingest"
	"github.com/kailas-cloud/docdex/internal/usecase/provider"
	rulesuc "github.com/kailas-cloud/docdex/internal/usecase/rules"
	"github.com/kailas-cloud/docdex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("cache", cfg.Cache.Enabled()),
		zap.Bool("ingest", cfg.Ingest.Enabled),
		zap.Bool("rules", cfg.Rules.Enabled),
		zap.Bool("dnd_rules", cfg.Rules.DnD.Enabled),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterQueryMetrics()
	metrics.RegisterIngestMetrics()
	metrics.RegisterProviderMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := memory.New(memory.WithIDGenerator(uuid.NewString))
	health := healthuc.New().
		WithNonEmpty("catalog", false, store.Collection(domain.CardsCollection), domain.ErrNoCards)

	// Optional cache: embedding vectors and budget counters.
	var cache *dbRedis.Store
	if cfg.Cache.Enabled() {
		cache = connectCache(ctx, cfg.Cache, logger)
		defer cache.Close()
		health.WithPinger("cache", cache, false)
	}

	// One budget covers embedding and chat calls.
	action := provider.BudgetActionWarn
	if cfg.Provider.Budget.Action == string(provider.BudgetActionReject) {
		action = provider.BudgetActionReject
	}
	tracker := provider.NewTracker(
		cfg.Provider.Name, cfg.Provider.Budget.DailyTokenLimit, cfg.Provider.Budget.MonthlyTokenLimit, action, logger,
	)
	if cache != nil {
		tracker.WithStore(ctx, budgetrepo.New(cache, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
	}

	server := chiTransport.NewServer(carduc.New(store), health, logger).
		WithLimits(request.Limits{
			DefaultPageSize: cfg.Search.DefaultPageSize,
			MaxPageSize:     cfg.Search.MaxPageSize,
		}).
		WithBudget(tracker).
		WithAPIKeys(cfg.Auth.APIKeys, cfg.Auth.AdminKeys)

	var (
		ingestSvc *ingestuc.Service
		scheduler *ingestuc.Scheduler
	)
	if cfg.Ingest.Enabled {
		ledger := openLedger(cfg.Ingest.LedgerPath, logger)
		defer func() { _ = ledger.Close() }()
		health.WithPinger("ledger", ledger, true)

		fetcher := scryfall.New(cfg.Ingest.BulkAPIURL, cfg.Ingest.BulkType, cfg.Ingest.DownloadDir, logger)
		ingestSvc = ingestuc.New(fetcher, ledger, store, logger).WithTimeout(cfg.Ingest.Timeout())
		scheduler = ingestuc.NewScheduler(
			ingestSvc, cfg.Ingest.Interval(), cfg.Ingest.Timeout(), cfg.Ingest.RunOnStart, logger,
		)
		scheduler.Start(ctx)
		server.WithIngest(ingestSvc)
	}

	if cfg.Rules.AnyRules() {
		ai := buildProviders(cfg, cache, tracker, health, logger)
		if cfg.Rules.Enabled {
			rules := ai.rules(store, domain.RulesCollection, rulesuc.DefaultSystemPrompt, cfg.Rules.SystemPrompt, cfg.Rules.TopK)
			health.WithNonEmpty("rules", false, rules, domain.ErrNoRules)
			server.WithRules(rules)
			go indexRules(ctx, rules, cfg.Rules.Path, logger)
		}
		if cfg.Rules.DnD.Enabled {
			dnd := ai.rules(store, domain.DnDRulesCollection, rulesuc.DnDSystemPrompt, cfg.Rules.DnD.SystemPrompt, cfg.Rules.TopK)
			health.WithNonEmpty("dnd_rules", false, dnd, domain.ErrNoRules)
			server.WithDnDRules(dnd)
			go indexRules(ctx, dnd, cfg.Rules.DnD.Path, logger)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if ingestSvc != nil {
		waitIngest(shutdownCtx, ingestSvc, logger)
	}

	logger.Info("Server stopped gracefully")
}

func connectCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) *dbRedis.Store {
	cache, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:      cfg.Addrs,
		Username:   cfg.Username,
		Password:   cfg.Password,
		DB:         cfg.DB,
		Standalone: cfg.Standalone,
	})
	if err != nil {
		logger.Fatal("Failed to create cache client", zap.Error(err))
	}
	if err := cache.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Cache not ready", zap.Error(err))
	}
	logger.Info("Connected to cache", zap.Strings("addrs", cfg.Addrs))
	return cache
}

func openLedger(path string, logger *zap.Logger) *runlog.Store {
	ledger, err := runlog.Open(path)
	if err != nil {
		logger.Fatal("Failed to open ingestion ledger", zap.String("path", path), zap.Error(err))
	}
	return ledger
}

// providers holds the embedders and completer shared by the rules corpora.
type providers struct {
	passages  domain.Embedder
	queries   domain.Embedder
	completer domain.Completer
	logger    *zap.Logger
}

// buildProviders assembles the provider chains:
// OpenAI -> Cached -> Instrumented (budget) -> Instruction.
func buildProviders(
	cfg config.Config,
	cache *dbRedis.Store,
	tracker *provider.Tracker,
	health *healthuc.Service,
	logger *zap.Logger,
) providers {
	pc := cfg.Provider
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:   pc.APIKey,
		BaseURL:  pc.BaseURL,
		Model:    pc.EmbeddingModel,
		Provider: pc.Name,
		Logger:   logger,
	})
	health.WithProvider("embedding", base)

	var embedder domain.Embedder = base
	if cache != nil {
		embedder = embcache.New(base, cache, embcache.Config{
			Model:   pc.EmbeddingModel,
			Lookups: metrics.EmbeddingCacheTotal,
			Logger:  logger,
		})
	}
	embedder = provider.NewInstrumentedEmbedder(embedder, pc.Name, pc.EmbeddingModel, tracker, logger)

	completer := provider.NewInstrumentedCompleter(
		openaiTransport.NewCompleter(&openaiTransport.Config{
			APIKey:   pc.APIKey,
			BaseURL:  pc.BaseURL,
			Model:    pc.ChatModel,
			Provider: pc.Name,
			Logger:   logger,
		}),
		pc.Name, pc.ChatModel, tracker, logger,
	)

	logger.Info("Rules provider configured",
		zap.String("provider", pc.Name),
		zap.String("embedding_model", pc.EmbeddingModel),
		zap.String("chat_model", pc.ChatModel),
	)
	return providers{
		passages:  domain.WithInstruction(embedder, cfg.Rules.DocumentInstruction),
		queries:   domain.WithInstruction(embedder, cfg.Rules.QueryInstruction),
		completer: completer,
		logger:    logger,
	}
}

// rules creates a rules service over one collection. A configured prompt
// replaces the corpus default.
func (p providers) rules(store *memory.Store, collection, defaultPrompt, prompt string, topK int) *rulesuc.Service {
	return rulesuc.New(store, p.passages, p.queries, p.completer, p.logger).
		WithCollection(collection).
		WithSystemPrompt(defaultPrompt).
		WithSystemPrompt(prompt).
		WithTopK(topK)
}

// indexRules embeds the rules file in the background; the rules routes
// answer 503 until it completes.
func indexRules(ctx context.Context, rules *rulesuc.Service, path string, logger *zap.Logger) {
	paragraphs, err := rulesuc.LoadFile(path)
	if err != nil {
		logger.Error("Failed to load rules", zap.String("path", path), zap.Error(err))
		return
	}
	if err := rules.Index(ctx, paragraphs); err != nil {
		logger.Error("Failed to index rules", zap.Error(err))
	}
}

func waitIngest(ctx context.Context, svc *ingestuc.Service, logger *zap.Logger) {
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Ingestion still running at shutdown")
	}
}
