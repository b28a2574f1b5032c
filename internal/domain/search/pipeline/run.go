package pipeline

import (
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/score"
)

// Executor runs pipelines. It holds no per-run state and is safe for
// concurrent use.
type Executor struct {
	scorer score.Scorer
}

// Option configures an Executor.
type Option func(*Executor)

// WithScorer overrides the relevance scorer used for projected scores.
func WithScorer(s score.Scorer) Option {
	return func(e *Executor) { e.scorer = s }
}

// NewExecutor creates an executor with the card scorer by default.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{scorer: score.Default}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState is the execution context of a single Run. It remembers the last
// $text phrase evaluated by a match stage.
type runState struct {
	phrase   string
	recorded bool
}

func (r *runState) RecordTextSearch(phrase string) {
	r.phrase = phrase
	r.recorded = true
}

// Run threads docs through the pipeline stages. The input slice and its
// documents are never modified and the result never aliases them.
func (e *Executor) Run(docs []*document.Document, p Pipeline) []*document.Document {
	cur := make([]*document.Document, len(docs))
	copy(cur, docs)

	// Match, sort and limit only reorder or drop pointers; project and
	// group build fresh documents. Inputs that survive to the end unbuilt
	// are cloned once there.
	st := &runState{}
	owned := false
	for _, s := range p.stages {
		cur = e.runStage(st, cur, s)
		switch s.(type) {
		case Project, Group:
			owned = true
		}
	}
	if !owned {
		for i, d := range cur {
			cur[i] = d.Clone()
		}
	}
	return cur
}

func (e *Executor) runStage(st *runState, docs []*document.Document, s Stage) []*document.Document {
	switch s := s.(type) {
	case Match:
		out := docs[:0:0]
		for _, d := range docs {
			if s.Filter.Match(d, st) {
				out = append(out, d)
			}
		}
		return out
	case Project:
		scoreFields := s.Projection.scoreFields()
		out := make([]*document.Document, len(docs))
		for i, d := range docs {
			projected := s.Projection.Apply(d)
			if st.recorded {
				relevance := document.Number(e.scorer.Score(d, st.phrase))
				for _, name := range scoreFields {
					projected.Set(name, relevance)
				}
			}
			out[i] = projected
		}
		return out
	case Group:
		return s.Spec.apply(docs)
	case Sort:
		SortDocuments(docs, s.Keys)
		return docs
	case Limit:
		if s.N < len(docs) {
			return docs[:s.N]
		}
		return docs
	case Unsupported:
		return docs
	}
	return docs
}
