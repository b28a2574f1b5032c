package openai

import (
	"context"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/docdex/internal/domain"
)

const kindEmbedding = "embedding"

// Embedder vectorizes rule paragraphs and questions.
type Embedder struct {
	endpoint
	dimensions int
}

// NewEmbedder creates an embedder for cfg.Model.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{endpoint: newEndpoint(cfg, kindEmbedding), dimensions: cfg.Dimensions}
}

// Embed implements domain.Embedder.
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

// BatchEmbed implements domain.BatchEmbedder with one API call. Vectors
// come back in input order whatever order the API lists them in.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
		Dimensions:     e.dimensions,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.failed("api_error")
		return domain.BatchEmbeddingResult{}, e.apiError(err, domain.ErrEmbeddingProviderError)
	}
	if len(resp.Data) != len(texts) {
		reason := "count_mismatch"
		if len(resp.Data) == 0 {
			reason = "empty_response"
		}
		e.failed(reason)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d embeddings for %d texts: %w",
			len(resp.Data), len(texts), domain.ErrEmbeddingProviderError)
	}
	e.succeeded(start, map[string]int{"prompt": resp.Usage.PromptTokens, "total": resp.Usage.TotalTokens})

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := domain.BatchEmbeddingResult{
		Embeddings:   make([][]float32, len(resp.Data)),
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	for i, d := range resp.Data {
		out.Embeddings[i] = d.Embedding
	}
	return out, nil
}
