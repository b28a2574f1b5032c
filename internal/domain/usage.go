package domain

import (
	"context"
	"sync"
)

type tokenUsageKey struct{}

// TokenUsage accumulates provider tokens spent while serving one request.
// The handler installs it in the context, services add to it and the
// handler reports the total in response headers.
type TokenUsage struct {
	mu         sync.Mutex
	embedding  int
	completion int
	used       bool
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// UsageFromContext returns the collector installed in ctx, or nil.
func UsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// AddEmbedding records embedding tokens. A cache hit records zero but
// still marks the collector as used. Safe on a nil receiver.
func (u *TokenUsage) AddEmbedding(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.embedding += n
	u.used = true
	u.mu.Unlock()
}

// AddCompletion records completion tokens. Safe on a nil receiver.
func (u *TokenUsage) AddCompletion(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.completion += n
	u.used = true
	u.mu.Unlock()
}

// Totals returns embedding and completion tokens and whether any provider was called.
func (u *TokenUsage) Totals() (embedding, completion int, used bool) {
	if u == nil {
		return 0, 0, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.embedding, u.completion, u.used
}
