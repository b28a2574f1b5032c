package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/docdex/internal/domain"
)

const kindCompletion = "completion"

// Completer streams rulings from a chat model.
type Completer struct {
	endpoint
}

// NewCompleter creates a streaming chat provider. cfg.Model names the chat model.
func NewCompleter(cfg *Config) *Completer {
	return &Completer{endpoint: newEndpoint(cfg, kindCompletion)}
}

// Complete implements domain.Completer. Usage is reported by the final
// stream chunk; servers that omit it yield zero usage.
func (c *Completer) Complete(
	ctx context.Context, msgs []domain.Message, onDelta func(string) error,
) (domain.CompletionUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:         c.model,
		Messages:      toChatMessages(msgs),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		User:          c.user,
	}

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		c.failed("api_error")
		return domain.CompletionUsage{}, c.apiError(err, domain.ErrCompletionProviderError)
	}
	defer func() { _ = stream.Close() }()

	var usage domain.CompletionUsage
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.failed("stream_error")
			return usage, c.apiError(err, domain.ErrCompletionProviderError)
		}
		if resp.Usage != nil {
			usage = domain.CompletionUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				c.failed("consumer_aborted")
				return usage, fmt.Errorf("deliver completion chunk: %w", err)
			}
		}
	}

	c.succeeded(start, map[string]int{
		"prompt":     usage.PromptTokens,
		"completion": usage.CompletionTokens,
		"total":      usage.TotalTokens,
	})
	return usage, nil
}

func toChatMessages(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
