// Package pipeline runs aggregation pipelines: ordered lists of match,
// project, group, sort and limit stages threaded over a document list.
package pipeline

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
)

// Stage is one pipeline step. The set of stage types is closed.
type Stage interface {
	stage()
}

// Match keeps documents satisfying the filter.
type Match struct {
	Filter filter.Filter
}

// Project reshapes each document.
type Project struct {
	Projection Projection
}

// Group folds documents into one document per distinct key.
type Group struct {
	Spec GroupSpec
}

// Sort orders documents by one or more keys. The sort is stable.
type Sort struct {
	Keys []SortKey
}

// Limit keeps the first N documents.
type Limit struct {
	N int
}

// Unsupported is a stage that could not be understood. It passes documents
// through unchanged.
type Unsupported struct {
	Name string
}

func (Match) stage()       {}
func (Project) stage()     {}
func (Group) stage()       {}
func (Sort) stage()        {}
func (Limit) stage()       {}
func (Unsupported) stage() {}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	stages []Stage
}

// New creates a pipeline.
func New(stages ...Stage) Pipeline {
	return Pipeline{stages: stages}
}

// Stages returns the stages in order.
func (p Pipeline) Stages() []Stage { return p.stages }

// Len returns the number of stages.
func (p Pipeline) Len() int { return len(p.stages) }

// Parse converts a JSON-style array of single-key stage documents into a
// Pipeline. Only a non-array payload is an error; unknown or malformed
// stages become Unsupported.
func Parse(v document.Value) (Pipeline, error) {
	items, ok := v.AsArray()
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: expected an array of stages, got %s", domain.ErrInvalidPipeline, v.Kind())
	}
	stages := make([]Stage, 0, len(items))
	for _, item := range items {
		stages = append(stages, parseStage(item))
	}
	return Pipeline{stages: stages}, nil
}

func parseStage(v document.Value) Stage {
	obj, ok := v.AsObject()
	if !ok || obj.Len() != 1 {
		return Unsupported{}
	}
	name := obj.Keys()[0]
	spec, _ := obj.Get(name)

	switch name {
	case "$match":
		return Match{Filter: filter.ParseValue(spec)}
	case "$project":
		specDoc, ok := spec.AsObject()
		if !ok {
			return Unsupported{Name: name}
		}
		return Project{Projection: ParseProjection(specDoc)}
	case "$group":
		specDoc, ok := spec.AsObject()
		if !ok {
			return Unsupported{Name: name}
		}
		return Group{Spec: ParseGroup(specDoc)}
	case "$sort":
		specDoc, ok := spec.AsObject()
		if !ok {
			return Unsupported{Name: name}
		}
		return Sort{Keys: ParseSort(specDoc)}
	case "$limit":
		n, ok := spec.AsInt()
		if !ok || n < 0 {
			return Unsupported{Name: name}
		}
		return Limit{N: n}
	}
	return Unsupported{Name: name}
}
