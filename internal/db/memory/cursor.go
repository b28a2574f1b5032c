package memory

import (
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
)

// Cursor is a lazily evaluated find. Sorting is applied before the limit
// and projection comes last, regardless of the order options were set.
type Cursor struct {
	coll   *Collection
	filter filter.Filter
	proj   pipeline.Projection
	sort   []pipeline.SortKey
	limit  int
}

// Sort orders results by the given keys.
func (c *Cursor) Sort(keys ...pipeline.SortKey) *Cursor {
	c.sort = append(c.sort[:0:0], keys...)
	return c
}

// Limit caps the number of results. A negative n removes the cap.
func (c *Cursor) Limit(n int) *Cursor {
	c.limit = n
	return c
}

// All evaluates the query and returns copies of the matching documents.
func (c *Cursor) All() []*document.Document {
	var matched []*document.Document
	for _, d := range c.coll.snapshot() {
		if c.filter.Matches(d) {
			matched = append(matched, d)
		}
	}
	if len(c.sort) > 0 {
		pipeline.SortDocuments(matched, c.sort)
	}
	if c.limit >= 0 && c.limit < len(matched) {
		matched = matched[:c.limit]
	}

	out := make([]*document.Document, len(matched))
	for i, d := range matched {
		out[i] = c.proj.Apply(d)
	}
	return out
}
