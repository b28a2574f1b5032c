package domain

import (
	"context"
	"strings"
)

// Role is the author of a chat message.
type Role string

// Chat roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to a completion provider.
type Message struct {
	Role    Role
	Content string
}

// CompletionUsage reports the tokens a completion consumed. Providers that
// do not report usage on streams leave it zero.
type CompletionUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer streams a chat completion. onDelta is called for every text
// fragment in order; returning an error from it aborts the stream.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, onDelta func(string) error) (CompletionUsage, error)
}

// CollectCompletion runs c and returns the whole answer as one string.
func CollectCompletion(ctx context.Context, c Completer, msgs []Message) (string, CompletionUsage, error) {
	var sb strings.Builder
	usage, err := c.Complete(ctx, msgs, func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	if err != nil {
		return "", usage, err
	}
	return sb.String(), usage, nil
}
