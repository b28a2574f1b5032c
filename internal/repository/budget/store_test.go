package budget

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/docdex/internal/db"
)

type fakeKV struct {
	vals    map[string]int64
	ttls    map[string]time.Duration
	raw     map[string][]byte
	getErr  error
	incrErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{vals: map[string]int64{}, ttls: map[string]time.Duration{}, raw: map[string][]byte{}}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if b, ok := f.raw[key]; ok {
		return b, nil
	}
	v, ok := f.vals[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte(strconv.FormatInt(v, 10)), nil
}

func (f *fakeKV) IncrBy(_ context.Context, key string, val int64) error {
	if f.incrErr != nil {
		return f.incrErr
	}
	f.vals[key] += val
	return nil
}

func (f *fakeKV) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	if _, ok := f.ttls[key]; ok && nx {
		return nil
	}
	f.ttls[key] = ttl
	return nil
}

func TestStore_IncrByAndGet(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, time.Hour, 2*time.Hour)
	ctx := context.Background()

	key := "docdex:budget:openai:daily:2026-10-18"
	if err := s.IncrBy(ctx, key, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrBy(ctx, key, 7); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got != 12 {
		t.Errorf("Get = %d, want 12", got)
	}
	if kv.ttls[key] != time.Hour {
		t.Errorf("daily TTL = %v", kv.ttls[key])
	}
}

func TestStore_TTLByPeriod(t *testing.T) {
	tests := []struct {
		key  string
		want time.Duration
	}{
		{"docdex:budget:openai:daily:2026-10-18", DefaultDailyTTL},
		{"docdex:budget:openai:monthly:2026-10", DefaultMonthlyTTL},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			kv := newFakeKV()
			s := New(kv, 0, 0)
			if err := s.IncrBy(context.Background(), tt.key, 1); err != nil {
				t.Fatal(err)
			}
			if kv.ttls[tt.key] != tt.want {
				t.Errorf("TTL = %v, want %v", kv.ttls[tt.key], tt.want)
			}
		})
	}
}

func TestStore_GetMissingIsZero(t *testing.T) {
	s := New(newFakeKV(), 0, 0)
	got, err := s.Get(context.Background(), "docdex:budget:x:daily:2026-01-01")
	if err != nil || got != 0 {
		t.Fatalf("Get = %d, %v", got, err)
	}
}

func TestStore_Errors(t *testing.T) {
	boom := errors.New("boom")

	kv := newFakeKV()
	kv.getErr = boom
	if _, err := New(kv, 0, 0).Get(context.Background(), "k"); !errors.Is(err, boom) {
		t.Errorf("Get err = %v", err)
	}

	kv = newFakeKV()
	kv.incrErr = boom
	if err := New(kv, 0, 0).IncrBy(context.Background(), "k", 1); !errors.Is(err, boom) {
		t.Errorf("IncrBy err = %v", err)
	}

	kv = newFakeKV()
	kv.raw["k"] = []byte("not-a-number")
	if _, err := New(kv, 0, 0).Get(context.Background(), "k"); err == nil {
		t.Error("expected parse error")
	}
}
