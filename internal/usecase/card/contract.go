package card

import "github.com/kailas-cloud/docdex/internal/db/memory"

// Store resolves collections of the document store.
type Store interface {
	Collection(name string) *memory.Collection
	Exists(name string) bool
}
