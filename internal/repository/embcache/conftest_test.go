package embcache

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
)

// scoring embeds every text as a one-dimensional vector of its length and
// charges one token per byte.
type scoring struct {
	err   error
	calls [][]string
}

func (s *scoring) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := s.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0], TotalTokens: res.TotalTokens}, nil
}

func (s *scoring) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		out.Embeddings[i] = []float32{float32(len(t))}
		out.PromptTokens += len(t)
		out.TotalTokens += len(t)
	}
	return out, nil
}

// memKV is an in-memory kv that can be switched to failing.
type memKV struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	failing bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

var errDown = errors.New("connection reset")

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.failing {
		return nil, errDown
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.failing {
		return errDown
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}
