package docdex

import "context"

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Message is one chat turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Completer streams a chat completion, calling onDelta for every text
// fragment in order. An error from onDelta must abort the stream.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, onDelta func(string) error) (CompletionUsage, error)
}

// CompletionUsage reports the tokens a completion consumed.
type CompletionUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
