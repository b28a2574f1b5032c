// Package memory is the in-memory document store: named collections of
// schema-less documents with filtered reads, aggregation pipelines and
// upsert-by-diff writes.
//
// Every document handed in is copied before it is stored and every document
// handed out is a copy, so callers can never reach stored state. Stored
// documents are never modified in place: writes replace them with patched
// copies, which lets readers take a consistent snapshot by copying the
// pointer list under a read lock.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/document/patch"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
)

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator makes Insert assign an _id to documents that have none.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.idGen = gen }
}

// WithExecutor sets the pipeline executor used by Aggregate.
func WithExecutor(e *pipeline.Executor) Option {
	return func(s *Store) { s.exec = e }
}

// Store holds named collections. It is safe for concurrent use: writers
// are exclusive, readers share.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	idGen       func() string
	exec        *pipeline.Executor
}

type collection struct {
	docs []*document.Document
	// keyIndex maps key field -> value key -> position of the first
	// document holding that value. Built lazily by UpsertByDiff.
	keyIndex map[string]map[string]int
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{collections: make(map[string]*collection)}
	for _, opt := range opts {
		opt(s)
	}
	if s.exec == nil {
		s.exec = pipeline.NewExecutor()
	}
	return s
}

// Collection returns a handle to a named collection. Collections come into
// existence on first write; reads of an unwritten collection see no documents.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

// Names returns the names of all written collections, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Exists reports whether a collection has been written.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok
}

// Collection is a handle to one named collection.
type Collection struct {
	store *Store
	name  string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// snapshot returns the current document list. The returned documents are
// shared and must be cloned before they leave the package.
func (c *Collection) snapshot() []*document.Document {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	col, ok := c.store.collections[c.name]
	if !ok {
		return nil
	}
	out := make([]*document.Document, len(col.docs))
	copy(out, col.docs)
	return out
}

// mustCollection returns the collection, creating it. Caller holds the write lock.
func (c *Collection) mustCollection() *collection {
	col, ok := c.store.collections[c.name]
	if !ok {
		col = &collection{}
		c.store.collections[c.name] = col
	}
	return col
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	if col, ok := c.store.collections[c.name]; ok {
		return len(col.docs)
	}
	return 0
}

// Insert appends a copy of doc.
func (c *Collection) Insert(doc *document.Document) {
	c.InsertMany([]*document.Document{doc})
}

// InsertMany appends copies of docs in order under a single lock.
func (c *Collection) InsertMany(docs []*document.Document) {
	copies := make([]*document.Document, len(docs))
	for i, d := range docs {
		copies[i] = c.prepare(d)
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	col := c.mustCollection()
	for _, d := range copies {
		col.docs = append(col.docs, d)
		col.indexAppend(d, len(col.docs)-1)
	}
}

func (c *Collection) prepare(doc *document.Document) *document.Document {
	d := doc.Clone()
	if d == nil {
		d = document.New()
	}
	if c.store.idGen != nil && !d.Has(document.IDField) {
		d.Set(document.IDField, document.String(c.store.idGen()))
	}
	return d
}

// FindOne returns a copy of the first document matching f, projected when
// proj is not empty. The boolean is false when nothing matched.
func (c *Collection) FindOne(f filter.Filter, proj pipeline.Projection) (*document.Document, bool) {
	for _, d := range c.snapshot() {
		if f.Matches(d) {
			return proj.Apply(d), true
		}
	}
	return nil, false
}

// Find starts a query. Nothing runs until the cursor is read.
func (c *Collection) Find(f filter.Filter, proj pipeline.Projection) *Cursor {
	return &Cursor{coll: c, filter: f, proj: proj, limit: -1}
}

// Count returns the number of documents matching f.
func (c *Collection) Count(f filter.Filter) int {
	n := 0
	for _, d := range c.snapshot() {
		if f.Matches(d) {
			n++
		}
	}
	return n
}

// Aggregate runs p over a snapshot of the collection.
func (c *Collection) Aggregate(p pipeline.Pipeline) []*document.Document {
	return c.store.exec.Run(c.snapshot(), p)
}

// DeleteMany removes every document matching f and returns how many were removed.
func (c *Collection) DeleteMany(f filter.Filter) int {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	col, ok := c.store.collections[c.name]
	if !ok {
		return 0
	}
	kept := col.docs[:0:0]
	for _, d := range col.docs {
		if !f.Matches(d) {
			kept = append(kept, d)
		}
	}
	removed := len(col.docs) - len(kept)
	if removed > 0 {
		col.docs = kept
		col.keyIndex = nil
	}
	return removed
}

// UpsertResult describes the outcome of UpsertByDiff.
type UpsertResult struct {
	// Inserted is true when no document had the key and doc was appended.
	Inserted bool
	// Changes holds the applied diff when an existing document was updated.
	Changes patch.Patch
}

// Updated reports whether an existing document was changed.
func (r UpsertResult) Updated() bool { return !r.Inserted && !r.Changes.Empty() }

// UpsertByDiff finds the first document whose keyField equals doc's and
// applies only the fields that differ (the stored _id is kept). When no
// document has the key, a copy of doc is inserted.
func (c *Collection) UpsertByDiff(doc *document.Document, keyField string) (UpsertResult, error) {
	keyVal, ok := doc.Lookup(keyField)
	if !ok {
		return UpsertResult{}, &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("%w %q", db.ErrMissingKey, keyField)}
	}
	incoming := c.prepare(doc)

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	col := c.mustCollection()
	pos, found := col.lookupKey(keyField, keyVal)
	if !found {
		col.docs = append(col.docs, incoming)
		col.indexAppend(incoming, len(col.docs)-1)
		return UpsertResult{Inserted: true}, nil
	}

	existing := col.docs[pos]
	changes := patch.Diff(existing, incoming, document.IDField)
	if changes.Empty() {
		return UpsertResult{}, nil
	}
	updated := existing.Clone()
	changes.Apply(updated)
	col.docs[pos] = updated
	col.reindex(existing, updated)
	return UpsertResult{Changes: changes}, nil
}

func (col *collection) lookupKey(field string, v document.Value) (int, bool) {
	if col.keyIndex == nil {
		col.keyIndex = make(map[string]map[string]int)
	}
	idx, ok := col.keyIndex[field]
	if !ok {
		idx = make(map[string]int, len(col.docs))
		for i, d := range col.docs {
			if kv, ok := d.Lookup(field); ok {
				if _, seen := idx[kv.Key()]; !seen {
					idx[kv.Key()] = i
				}
			}
		}
		col.keyIndex[field] = idx
	}
	pos, ok := idx[v.Key()]
	return pos, ok
}

func (col *collection) indexAppend(d *document.Document, pos int) {
	for field, idx := range col.keyIndex {
		if kv, ok := d.Lookup(field); ok {
			if _, seen := idx[kv.Key()]; !seen {
				idx[kv.Key()] = pos
			}
		}
	}
}

// reindex drops any key index whose value changed between previous and
// updated; it is rebuilt on the next lookup.
func (col *collection) reindex(previous, updated *document.Document) {
	for field := range col.keyIndex {
		oldV, oldOK := previous.Lookup(field)
		newV, newOK := updated.Lookup(field)
		if oldOK != newOK || (oldOK && !oldV.Equal(newV)) {
			delete(col.keyIndex, field)
		}
	}
}
