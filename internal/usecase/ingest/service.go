// Package ingest loads bulk card snapshots into the document store.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/fold"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

// DefaultTimeout bounds a run started with Trigger.
const DefaultTimeout = time.Hour

// History row fields.
const (
	historyDateField = "date"
	historyCardField = "card_id"
)

const progressEvery = 50_000

// Service runs ingestion. At most one run is active at a time.
type Service struct {
	fetcher Fetcher
	ledger  Ledger
	store   Store
	logger  *zap.Logger

	newID   func() string
	now     func() time.Time
	timeout time.Duration

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates an ingestion service.
func New(fetcher Fetcher, ledger Ledger, store Store, logger *zap.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		ledger:  ledger,
		store:   store,
		logger:  logger,
		newID:   uuid.NewString,
		now:     time.Now,
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the deadline of runs started with Trigger.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator overrides run id generation.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.newID = gen
	return s
}

// Running reports whether a run is in progress.
func (s *Service) Running() bool { return s.running.Load() }

// Run performs one ingestion synchronously and returns the final run record.
func (s *Service) Run(ctx context.Context) (domingest.Run, error) {
	run, err := s.begin(ctx)
	if err != nil {
		return domingest.Run{}, err
	}
	return s.execute(ctx, run)
}

// Trigger starts a run in the background and returns it in its running state.
// The run outlives ctx and is bounded by the service timeout instead.
func (s *Service) Trigger(ctx context.Context) (domingest.Run, error) {
	run, err := s.begin(ctx)
	if err != nil {
		return domingest.Run{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		_, _ = s.execute(runCtx, run)
	}()
	return run, nil
}

// Wait blocks until background runs started with Trigger have finished.
func (s *Service) Wait() { s.wg.Wait() }

// Recent returns the latest runs, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]domingest.Run, error) {
	runs, err := s.ledger.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}

// LastSuccess returns the newest succeeded run. The boolean is false when none exists.
func (s *Service) LastSuccess(ctx context.Context) (domingest.Run, bool, error) {
	run, ok, err := s.ledger.LastSuccess(ctx)
	if err != nil {
		return domingest.Run{}, false, fmt.Errorf("last success: %w", err)
	}
	return run, ok, nil
}

func (s *Service) begin(ctx context.Context) (domingest.Run, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domingest.Run{}, domain.ErrIngestRunning
	}

	run := domingest.Run{ID: s.newID(), StartedAt: s.now().UTC(), Status: domingest.StatusRunning}
	if err := s.ledger.Start(ctx, run); err != nil {
		s.running.Store(false)
		return domingest.Run{}, fmt.Errorf("record run start: %w", err)
	}
	s.logger.Info("Ingestion started", zap.String("run_id", run.ID))
	return run, nil
}

func (s *Service) execute(ctx context.Context, run domingest.Run) (domingest.Run, error) {
	defer s.running.Store(false)

	snap, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return s.finish(ctx, run, err)
	}
	run.SnapshotDate = snap.Date

	counts, err := s.apply(ctx, run.ID, snap)
	run.Counts = counts
	return s.finish(ctx, run, err)
}

// apply upserts every card of the snapshot, then replaces the snapshot
// day's history rows. History is only written when every card was handled.
func (s *Service) apply(ctx context.Context, runID string, snap domingest.Snapshot) (domingest.Counts, error) {
	var counts domingest.Counts
	cards := s.store.Collection(domain.CardsCollection)
	prices := make([]*document.Document, 0, len(snap.Records))
	ranks := make([]*document.Document, 0, len(snap.Records))

	for i, rec := range snap.Records {
		if err := ctx.Err(); err != nil {
			return counts, fmt.Errorf("interrupted after %d records: %w", i, err)
		}
		if i > 0 && i%progressEvery == 0 {
			s.logger.Info("Ingestion progress",
				zap.String("run_id", runID),
				zap.Int("processed", i),
				zap.Int("total", len(snap.Records)),
			)
		}

		card, ok := normalise(rec)
		if !ok {
			counts.Failed++
			metrics.IngestRecordsTotal.WithLabelValues("failed").Inc()
			continue
		}

		prices = append(prices, document.New(
			document.F(historyDateField, snap.Date),
			document.F(historyCardField, card.id),
			document.F(domain.CardPricesField, card.prices),
		))
		ranks = append(ranks, document.New(
			document.F(historyDateField, snap.Date),
			document.F(historyCardField, card.id),
			document.F(domain.CardEDHRECField, card.rank),
		))

		res, err := cards.UpsertByDiff(card.doc, domain.CardIDField)
		switch {
		case err != nil:
			counts.Failed++
			metrics.IngestRecordsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("Card upsert failed", zap.String("card_id", card.id), zap.Error(err))
		case res.Inserted:
			counts.Inserted++
			metrics.IngestRecordsTotal.WithLabelValues("inserted").Inc()
		case res.Updated():
			counts.Updated++
			metrics.IngestRecordsTotal.WithLabelValues("updated").Inc()
		default:
			counts.Unchanged++
			metrics.IngestRecordsTotal.WithLabelValues("unchanged").Inc()
		}
	}

	counts.History = s.replaceHistory(domain.PriceHistoryCollection, snap.Date, prices) +
		s.replaceHistory(domain.RankHistoryCollection, snap.Date, ranks)
	return counts, nil
}

// replaceHistory swaps the rows of one day, so re-ingesting a snapshot
// never duplicates history.
func (s *Service) replaceHistory(collection, date string, rows []*document.Document) int {
	col := s.store.Collection(collection)
	col.DeleteMany(filter.New(filter.Eq(historyDateField, date)))
	col.InsertMany(rows)
	return len(rows)
}

func (s *Service) finish(ctx context.Context, run domingest.Run, runErr error) (domingest.Run, error) {
	finished := s.now().UTC()
	run.FinishedAt = &finished
	run.Status = domingest.StatusSucceeded
	if runErr != nil {
		run.Status = domingest.StatusFailed
		run.Error = runErr.Error()
	}

	if err := s.ledger.Finish(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("Failed to record run finish", zap.String("run_id", run.ID), zap.Error(err))
	}

	metrics.IngestRunsTotal.WithLabelValues(string(run.Status)).Inc()
	metrics.IngestRunDuration.Observe(run.Duration().Seconds())
	for _, name := range []string{domain.CardsCollection, domain.PriceHistoryCollection, domain.RankHistoryCollection} {
		metrics.CollectionDocuments.WithLabelValues(name).Set(float64(s.store.Collection(name).Len()))
	}

	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.String("snapshot_date", run.SnapshotDate),
		zap.Int("inserted", run.Counts.Inserted),
		zap.Int("updated", run.Counts.Updated),
		zap.Int("unchanged", run.Counts.Unchanged),
		zap.Int("failed", run.Counts.Failed),
		zap.Int("history", run.Counts.History),
		zap.Duration("duration", run.Duration()),
	}
	if runErr != nil {
		s.logger.Error("Ingestion failed", append(fields, zap.Error(runErr))...)
		return run, runErr
	}
	metrics.IngestLastSuccess.Set(float64(finished.Unix()))
	s.logger.Info("Ingestion finished", fields...)
	return run, nil
}

// normalisedCard is a snapshot record split into the stored card and the
// values tracked daily.
type normalisedCard struct {
	id     string
	doc    *document.Document
	prices *document.Document
	rank   document.Value
}

// normalise prepares a record for storage. Records without a string id
// are rejected.
func normalise(rec *document.Document) (normalisedCard, bool) {
	idVal, _ := rec.Get(domain.CardIDField)
	id, ok := idVal.AsString()
	if !ok || id == "" {
		return normalisedCard{}, false
	}

	doc := rec.Clone()
	if nameVal, ok := doc.Get(domain.CardNameField); ok {
		if name, ok := nameVal.AsString(); ok {
			doc.Set(domain.CardNameSearch, document.String(fold.Name(name)))
		}
	}

	pricesVal, _ := doc.Get(domain.CardPricesField)
	rank, ok := doc.Get(domain.CardEDHRECField)
	if !ok {
		rank = document.Null()
	}
	doc.Delete(domain.CardPricesField)
	doc.Delete(domain.CardEDHRECField)

	return normalisedCard{id: id, doc: doc, prices: normalisePrices(pricesVal), rank: rank}, true
}

// normalisePrices converts price strings to numbers. Nulls and empty
// strings are kept, unparseable strings become null.
func normalisePrices(v document.Value) *document.Document {
	out := document.New()
	in, ok := v.AsObject()
	if !ok {
		return out
	}
	in.Range(func(key string, price document.Value) bool {
		s, isString := price.AsString()
		switch {
		case !isString || s == "":
			out.Set(key, price)
		default:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				out.Set(key, document.Number(f))
			} else {
				out.Set(key, document.Null())
			}
		}
		return true
	})
	return out
}
