package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// MaxAPIBatchSize caps the texts sent in one embedding request.
const MaxAPIBatchSize = 256

// Guard is the budget contract the decorators depend on.
type Guard interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// InstrumentedEmbedder adds budget enforcement, usage accounting and logging.
// Request metrics are recorded by the transport.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	guard    Guard
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. A nil guard disables the budget.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, guard Guard, logger *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, provider: provider, model: model, guard: guard, logger: logger}
}

// Embed checks the budget, delegates and records the spent tokens.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.check(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)
	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.record(ctx, result.TotalTokens)
	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits texts into provider-sized chunks and re-checks the
// budget before each one.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for offset := 0; offset < len(texts); offset += MaxAPIBatchSize {
		if err := p.check(ctx, len(texts)); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		chunk := texts[offset:min(offset+MaxAPIBatchSize, len(texts))]

		res, err := domain.BatchEmbed(ctx, p.inner, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		p.record(ctx, res.TotalTokens)

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

func (p *InstrumentedEmbedder) check(ctx context.Context, n int) error {
	if p.guard == nil {
		return nil
	}
	if err := p.guard.Check(ctx); err != nil {
		p.logger.Error("Budget exceeded",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Int("texts", n),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (p *InstrumentedEmbedder) record(ctx context.Context, tokens int) {
	domain.UsageFromContext(ctx).AddEmbedding(tokens)
	if p.guard != nil {
		p.guard.Record(int64(tokens))
	}
}

// InstrumentedCompleter adds budget enforcement, usage accounting and logging
// to a streaming completer.
type InstrumentedCompleter struct {
	inner    domain.Completer
	provider string
	model    string
	guard    Guard
	logger   *zap.Logger
}

// NewInstrumentedCompleter wraps inner. A nil guard disables the budget.
func NewInstrumentedCompleter(inner domain.Completer, provider, model string, guard Guard, logger *zap.Logger) *InstrumentedCompleter {
	return &InstrumentedCompleter{inner: inner, provider: provider, model: model, guard: guard, logger: logger}
}

// Complete checks the budget and streams the inner completion. Tokens are
// recorded even when the stream fails part way, as the provider bills them.
func (c *InstrumentedCompleter) Complete(
	ctx context.Context, msgs []domain.Message, onDelta func(string) error,
) (domain.CompletionUsage, error) {
	if c.guard != nil {
		if err := c.guard.Check(ctx); err != nil {
			c.logger.Error("Budget exceeded",
				zap.String("provider", c.provider),
				zap.String("model", c.model),
				zap.Error(err),
			)
			return domain.CompletionUsage{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	var chunks int
	usage, err := c.inner.Complete(ctx, msgs, func(delta string) error {
		chunks++
		return onDelta(delta)
	})
	duration := time.Since(start)

	domain.UsageFromContext(ctx).AddCompletion(usage.TotalTokens)
	if c.guard != nil {
		c.guard.Record(int64(usage.TotalTokens))
	}

	if err != nil {
		c.logger.Error("Completion request failed",
			zap.String("provider", c.provider),
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Int("chunks", chunks),
			zap.Error(err),
		)
		return usage, fmt.Errorf("complete: %w", err)
	}

	c.logger.Debug("Completion request completed",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("messages", len(msgs)),
		zap.Int("chunks", chunks),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
	)
	return usage, nil
}
