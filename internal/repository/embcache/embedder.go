// Package embcache keeps rule paragraph vectors in the KV store so a
// restart re-indexes the rules without paying for the embeddings again.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
)

// DefaultTTL keeps cached vectors for a month.
const DefaultTTL = 30 * 24 * time.Hour

// entryVersion leads every stored entry; entries of another version are
// treated as misses.
const entryVersion byte = 1

const headerLen = 5 // version + uint32 dimensions

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config tunes an Embedder. Zero values pick defaults.
type Config struct {
	// Model scopes the keys so vectors of different models never mix.
	Model string
	TTL   time.Duration
	// Lookups counts results under the "result" label (hit, miss).
	Lookups *prometheus.CounterVec
	Logger  *zap.Logger
}

// Embedder is a caching domain.Embedder. Cache failures degrade to misses.
type Embedder struct {
	inner domain.Embedder
	kv    kv
	cfg   Config
}

// New wraps inner with a cache in s.
func New(inner domain.Embedder, s kv, cfg Config) *Embedder {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Embedder{inner: inner, kv: s, cfg: cfg}
}

// Embed returns the cached vector of text, embedding it on a miss. A hit
// reports zero tokens.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed serves hits from the cache and embeds the misses in one
// inner batch. Tokens are those of the misses.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	var misses []int
	for i, text := range texts {
		if vec, ok := e.lookup(ctx, text); ok {
			out.Embeddings[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	e.count("hit", len(texts)-len(misses))
	e.count("miss", len(misses))
	if len(misses) == 0 {
		return out, nil
	}

	pending := make([]string, len(misses))
	for j, i := range misses {
		pending[j] = texts[i]
	}
	fresh, err := domain.BatchEmbed(ctx, e.inner, pending)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(pending), err)
	}
	if len(fresh.Embeddings) != len(pending) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"embed uncached texts: got %d vectors for %d texts", len(fresh.Embeddings), len(pending))
	}
	for j, i := range misses {
		out.Embeddings[i] = fresh.Embeddings[j]
		e.store(ctx, texts[i], fresh.Embeddings[j])
	}
	out.PromptTokens = fresh.PromptTokens
	out.TotalTokens = fresh.TotalTokens
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return domain.Key("emb", e.cfg.Model, hex.EncodeToString(sum[:]))
}

func (e *Embedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	key := e.key(text)
	raw, err := e.kv.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil, false
	case err != nil:
		e.cfg.Logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	vec, err := decode(raw)
	if err != nil {
		e.cfg.Logger.Warn("Discarding cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (e *Embedder) store(ctx context.Context, text string, vec []float32) {
	key := e.key(text)
	if err := e.kv.SetWithTTL(ctx, key, encode(vec), e.cfg.TTL); err != nil {
		e.cfg.Logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Embedder) count(result string, n int) {
	if e.cfg.Lookups != nil && n > 0 {
		e.cfg.Lookups.WithLabelValues(result).Add(float64(n))
	}
}

// encode lays a vector out as version, dimensions and little-endian floats.
func encode(v []float32) []byte {
	buf := make([]byte, headerLen+4*len(v))
	buf[0] = entryVersion
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(v))) //nolint:gosec // vector lengths fit in uint32
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[headerLen+4*i:], math.Float32bits(f))
	}
	return buf
}

func decode(raw []byte) ([]float32, error) {
	if len(raw) < headerLen {
		return nil, fmt.Errorf("entry of %d bytes is shorter than its header", len(raw))
	}
	if raw[0] != entryVersion {
		return nil, fmt.Errorf("entry version %d, want %d", raw[0], entryVersion)
	}
	dims := int(binary.LittleEndian.Uint32(raw[1:]))
	if len(raw) != headerLen+4*dims {
		return nil, fmt.Errorf("entry declares %d dimensions in %d bytes", dims, len(raw))
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[headerLen+4*i:]))
	}
	return vec, nil
}
