// Package budget persists the provider token counters in the KV store so
// a restart resumes the current day and month instead of starting at zero.
package budget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/docdex/internal/db"
)

// A daily counter must outlive its day in every timezone and a monthly
// counter its longest month.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

type counters interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps one counter per key. Keys have the form
// docdex:budget:{provider}:{daily|monthly}:{bucket}; the period segment
// picks the TTL.
type Store struct {
	kv   counters
	ttls map[string]time.Duration
}

// New creates a Store. Non-positive TTLs pick the defaults.
func New(kv counters, dailyTTL, monthlyTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthlyTTL <= 0 {
		monthlyTTL = DefaultMonthlyTTL
	}
	return &Store{kv: kv, ttls: map[string]time.Duration{"daily": dailyTTL, "monthly": monthlyTTL}}
}

// IncrBy adds val to the counter. The TTL is set on the first increment
// only, so a counter expires relative to its creation.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.kv.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	if err := s.kv.Expire(ctx, key, s.ttl(key), true); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// Get reads a counter. A missing key counts as zero.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("read %s: counter %q: %w", key, raw, err)
	}
	return n, nil
}

// ttl picks the period's TTL; keys without a known period get the
// longest one.
func (s *Store) ttl(key string) time.Duration {
	for _, seg := range strings.Split(key, ":") {
		if d, ok := s.ttls[seg]; ok {
			return d
		}
	}
	return s.ttls["monthly"]
}
