// Package db holds the storage contracts shared by the docdex stores and
// the errors they report.
package db

import (
	"context"
	"time"
)

// Cache is the optional key-value server holding embedding vectors and
// token budget counters. Losing it costs provider tokens, never data.
type Cache interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore is the subset of key-value commands the cache consumers use.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
