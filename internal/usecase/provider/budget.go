// Package provider guards calls to the AI provider with a shared token
// budget, per-request usage accounting and logging.
package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

// BudgetAction defines behavior when the token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists counters. IncrBy may be retried.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetStatus is a point-in-time view of the budget.
type BudgetStatus struct {
	Provider       string    `json:"provider"`
	DailyLimit     int64     `json:"daily_limit"`
	DailyUsed      int64     `json:"daily_used"`
	MonthlyLimit   int64     `json:"monthly_limit"`
	MonthlyUsed    int64     `json:"monthly_used"`
	Exhausted      bool      `json:"exhausted"`
	DailyResetsAt  time.Time `json:"daily_resets_at"`
	MonthlyResetAt time.Time `json:"monthly_resets_at"`
}

// Tracker counts tokens in memory and writes them behind to an optional store.
// Check never leaves the process.
type Tracker struct {
	mu           sync.Mutex
	dailyUsed    int64
	monthlyUsed  int64
	dailyLimit   int64
	monthlyLimit int64
	action       BudgetAction
	provider     string
	day          time.Time
	month        time.Time
	now          func() time.Time
	store        BudgetStore
	logger       *zap.Logger
}

// NewTracker creates a tracker. Zero limits mean unlimited.
func NewTracker(provider string, dailyLimit, monthlyLimit int64, action BudgetAction, logger *zap.Logger) *Tracker {
	t := &Tracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		provider:     provider,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
	now := t.now()
	t.day, t.month = truncateToDay(now), truncateToMonth(now)
	return t
}

// WithStore attaches persistence and loads the current counters from it.
func (t *Tracker) WithStore(ctx context.Context, store BudgetStore) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = store
	now := t.now()
	if val, err := store.Get(ctx, t.dailyKey(now)); err == nil {
		t.dailyUsed = val
	} else {
		t.logger.Warn("Failed to load daily budget", zap.Error(err))
	}
	if val, err := store.Get(ctx, t.monthlyKey(now)); err == nil {
		t.monthlyUsed = val
	} else {
		t.logger.Warn("Failed to load monthly budget", zap.Error(err))
	}

	t.logger.Info("Budget loaded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("monthly_used", t.monthlyUsed),
	)
	return t
}

func (t *Tracker) dailyKey(at time.Time) string {
	return domain.Key("budget", t.provider, "daily", at.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(at time.Time) string {
	return domain.Key("budget", t.provider, "monthly", at.Format("2006-01"))
}

// Check reports whether a new provider call may start.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	if !t.exceeded() {
		return nil
	}
	if t.action == BudgetActionReject {
		return domain.ErrQuotaExceeded
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("daily_limit", t.dailyLimit),
		zap.Int64("monthly_used", t.monthlyUsed),
		zap.Int64("monthly_limit", t.monthlyLimit),
	)
	return nil
}

func (t *Tracker) exceeded() bool {
	return (t.dailyLimit > 0 && t.dailyUsed >= t.dailyLimit) ||
		(t.monthlyLimit > 0 && t.monthlyUsed >= t.monthlyLimit)
}

// Record adds consumed tokens, then persists them when a store is attached.
func (t *Tracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	t.mu.Lock()
	t.rollover()
	t.dailyUsed += tokens
	t.monthlyUsed += tokens
	store := t.store
	now := t.now()
	dailyKey, monthlyKey := t.dailyKey(now), t.monthlyKey(now)
	t.mu.Unlock()

	t.publish()

	if store == nil {
		return
	}
	// Detached from the request so a cancelled client does not lose the count.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, dailyKey, tokens); err != nil {
		t.logger.Warn("Failed to persist daily budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, tokens); err != nil {
		t.logger.Warn("Failed to persist monthly budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// RemainingDaily returns tokens left today, -1 when unlimited.
func (t *Tracker) RemainingDaily() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return remaining(t.dailyLimit, t.dailyUsed)
}

// RemainingMonthly returns tokens left this month, -1 when unlimited.
func (t *Tracker) RemainingMonthly() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return remaining(t.monthlyLimit, t.monthlyUsed)
}

// Status returns a snapshot for the usage endpoint.
func (t *Tracker) Status() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return BudgetStatus{
		Provider:       t.provider,
		DailyLimit:     t.dailyLimit,
		DailyUsed:      t.dailyUsed,
		MonthlyLimit:   t.monthlyLimit,
		MonthlyUsed:    t.monthlyUsed,
		Exhausted:      t.exceeded(),
		DailyResetsAt:  t.day.AddDate(0, 0, 1),
		MonthlyResetAt: t.month.AddDate(0, 1, 0),
	}
}

func (t *Tracker) publish() {
	g := metrics.BudgetTokensRemaining
	g.WithLabelValues(t.provider, "daily").Set(float64(t.RemainingDaily()))
	g.WithLabelValues(t.provider, "monthly").Set(float64(t.RemainingMonthly()))
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}

// rollover zeroes counters when the UTC day or month changes. Callers hold mu.
func (t *Tracker) rollover() {
	now := t.now()
	if today := truncateToDay(now); today.After(t.day) {
		t.dailyUsed = 0
		t.day = today
	}
	if thisMonth := truncateToMonth(now); thisMonth.After(t.month) {
		t.monthlyUsed = 0
		t.month = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
