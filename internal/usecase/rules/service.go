// Package rules answers rules questions from the most similar rule paragraphs.
package rules

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

// Stored paragraph fields.
const (
	ParagraphIDField = "paragraph_id"
	TextField        = "text"
	EmbeddingField   = "embedding"
)

// Retrieval defaults.
const (
	DefaultTopK = 20
	MaxTopK     = 100
)

// System prompts for the two rules corpora.
const (
	DefaultSystemPrompt = "You are a Magic: The Gathering judge helping a player with a rules question. " +
		"Keep answers short and clear so the game is not slowed down."
	DnDSystemPrompt = "You are a Dungeons & Dragons rules expert helping a player during a session. " +
		"Keep answers short and clear so the game is not slowed down."
)

// Match is a paragraph with its similarity to the question.
type Match struct {
	Paragraph
	Score float64
}

// Service indexes rule paragraphs and answers questions about them.
type Service struct {
	store      Store
	passages   domain.Embedder
	queries    domain.Embedder
	completer  domain.Completer
	collection string
	prompt     string
	topK       int
	logger     *zap.Logger

	mu    sync.RWMutex
	index []entry
}

// New creates a rules service. passages embeds paragraphs at index time and
// queries embeds questions; they may be the same embedder.
func New(store Store, passages, queries domain.Embedder, completer domain.Completer, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		passages:   passages,
		queries:    queries,
		completer:  completer,
		collection: domain.RulesCollection,
		prompt:     DefaultSystemPrompt,
		topK:       DefaultTopK,
		logger:     logger,
	}
}

// WithCollection stores the paragraphs in another collection, so several
// corpora can share one document store.
func (s *Service) WithCollection(name string) *Service {
	if name != "" {
		s.collection = name
	}
	return s
}

// Collection returns the collection holding the indexed paragraphs.
func (s *Service) Collection() string { return s.collection }

// WithSystemPrompt overrides the system message.
func (s *Service) WithSystemPrompt(prompt string) *Service {
	if prompt != "" {
		s.prompt = prompt
	}
	return s
}

// WithTopK sets the number of paragraphs used when the caller asks for none.
func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = min(k, MaxTopK)
	}
	return s
}

// Len returns the number of indexed paragraphs.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Index embeds paragraphs and replaces the stored rules with them.
func (s *Service) Index(ctx context.Context, paragraphs []Paragraph) error {
	if len(paragraphs) == 0 {
		return fmt.Errorf("%w: no paragraphs", domain.ErrNoRules)
	}
	start := time.Now()

	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		texts[i] = p.Text
	}
	res, err := domain.BatchEmbed(ctx, s.passages, texts)
	if err != nil {
		return fmt.Errorf("embed paragraphs: %w", err)
	}
	if len(res.Embeddings) != len(paragraphs) {
		return fmt.Errorf("embed paragraphs: got %d vectors for %d paragraphs: %w",
			len(res.Embeddings), len(paragraphs), domain.ErrEmbeddingProviderError)
	}

	docs := make([]*document.Document, len(paragraphs))
	index := make([]entry, len(paragraphs))
	for i, p := range paragraphs {
		docs[i] = document.New(
			document.F(ParagraphIDField, p.ID),
			document.F(TextField, p.Text),
			document.F(EmbeddingField, vectorValue(res.Embeddings[i])),
		)
		index[i] = newEntry(p, res.Embeddings[i])
	}

	col := s.store.Collection(s.collection)
	col.DeleteMany(filter.New())
	col.InsertMany(docs)

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	metrics.CollectionDocuments.WithLabelValues(s.collection).Set(float64(len(docs)))
	s.logger.Info("Rules indexed",
		zap.String("collection", s.collection),
		zap.Int("paragraphs", len(paragraphs)),
		zap.Int("tokens", res.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Search returns the k paragraphs most similar to question, best first.
func (s *Service) Search(ctx context.Context, question string, k int) ([]Match, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.NewValidationError("question", "is required")
	}
	if k <= 0 {
		k = s.topK
	}
	if k > MaxTopK {
		return nil, domain.NewValidationError("paragraph_count", fmt.Sprintf("must be at most %d", MaxTopK))
	}

	index := s.loaded()
	if len(index) == 0 {
		return nil, domain.ErrNoRules
	}
	start := time.Now()

	q, err := s.queries.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	matches := topK(index, q.Embedding, k)

	metrics.QueryDuration.WithLabelValues(s.collection).Observe(time.Since(start).Seconds())
	metrics.QueryResults.WithLabelValues(s.collection).Observe(float64(len(matches)))
	return matches, nil
}

// Ask retrieves the k best paragraphs and streams the model's answer to w.
func (s *Service) Ask(ctx context.Context, question string, k int, w io.Writer) error {
	matches, err := s.Search(ctx, question, k)
	if err != nil {
		return err
	}

	_, err = s.completer.Complete(ctx, s.messages(strings.TrimSpace(question), matches), func(delta string) error {
		_, werr := io.WriteString(w, delta)
		return werr //nolint:wrapcheck // surfaced by the completer
	})
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	return nil
}

func (s *Service) messages(question string, matches []Match) []domain.Message {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.ID + ": " + m.Text
	}
	return []domain.Message{
		{Role: domain.RoleSystem, Content: s.prompt},
		{Role: domain.RoleUser, Content: "Please answer the following question: " + question},
		{Role: domain.RoleUser, Content: fmt.Sprintf(
			"Here are the %d rules most related to the question:\n---\n%s",
			len(matches), strings.Join(parts, "\n---\n"),
		)},
	}
}

// loaded returns the in-memory index, rebuilding it from the stored
// paragraphs when it is empty.
func (s *Service) loaded() []entry {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()
	if len(index) > 0 {
		return index
	}

	docs := s.store.Collection(s.collection).
		Find(filter.New(), pipeline.Projection{}).
		All()
	index = make([]entry, 0, len(docs))
	for _, d := range docs {
		if e, ok := entryFromDocument(d); ok {
			index = append(index, e)
		}
	}
	if len(index) == 0 {
		return nil
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return index
}

func vectorValue(vec []float32) document.Value {
	items := make([]document.Value, len(vec))
	for i, f := range vec {
		items[i] = document.Number(float64(f))
	}
	return document.Array(items...)
}

func entryFromDocument(d *document.Document) (entry, bool) {
	idVal, _ := d.Get(ParagraphIDField)
	textVal, _ := d.Get(TextField)
	vecVal, _ := d.Get(EmbeddingField)

	text, ok := textVal.AsString()
	if !ok {
		return entry{}, false
	}
	items, ok := vecVal.AsArray()
	if !ok || len(items) == 0 {
		return entry{}, false
	}
	vec := make([]float32, len(items))
	for i, it := range items {
		f, ok := it.AsNumber()
		if !ok {
			return entry{}, false
		}
		vec[i] = float32(f)
	}
	return newEntry(Paragraph{ID: idVal.Render(), Text: text}, vec), true
}
