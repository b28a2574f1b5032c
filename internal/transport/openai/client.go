// Package openai talks to OpenAI-compatible embedding and chat APIs.
package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/metrics"
)

// Config holds the provider settings shared by the embedder and the completer.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int // embeddings only; 0 keeps the model default
	User       string
	Provider   string
	Logger     *zap.Logger
}

// endpoint is one model of one provider. It owns the provider metrics.
type endpoint struct {
	client   *openai.Client
	provider string
	model    string
	kind     string
	user     string
	logger   *zap.Logger
}

func newEndpoint(cfg *Config, kind string) endpoint {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return endpoint{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: cfg.Provider,
		model:    cfg.Model,
		kind:     kind,
		user:     cfg.User,
		logger:   logger,
	}
}

// succeeded records a finished call and the tokens it reported, by type
// (prompt, completion, total).
func (e endpoint) succeeded(start time.Time, tokens map[string]int) {
	elapsed := time.Since(start)
	metrics.ProviderRequestsTotal.WithLabelValues(e.provider, e.model, e.kind, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(e.provider, e.model, e.kind).Observe(elapsed.Seconds())
	for typ, n := range tokens {
		if n > 0 {
			metrics.ProviderTokensTotal.WithLabelValues(e.provider, e.model, typ).Add(float64(n))
		}
	}
	e.logger.Debug("Provider call finished",
		zap.String("kind", e.kind),
		zap.String("model", e.model),
		zap.Duration("elapsed", elapsed),
		zap.Int("total_tokens", tokens["total"]),
	)
}

func (e endpoint) failed(reason string) {
	metrics.ProviderRequestsTotal.WithLabelValues(e.provider, e.model, e.kind, "error").Inc()
	metrics.ProviderErrorsTotal.WithLabelValues(e.provider, e.model, reason).Inc()
}

// HealthCheck lists the provider's models, which costs no tokens.
func (e endpoint) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
