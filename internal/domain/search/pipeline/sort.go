package pipeline

import (
	"slices"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// SortKey is one sort field with its direction.
type SortKey struct {
	Field string
	Desc  bool
}

// Asc sorts ascending by field.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc sorts descending by field.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// ParseSort reads {field: 1|-1, ...}. Negative numbers sort descending;
// anything else ascending.
func ParseSort(spec *document.Document) []SortKey {
	var keys []SortKey
	spec.Range(func(field string, v document.Value) bool {
		n, _ := v.AsNumber()
		keys = append(keys, SortKey{Field: field, Desc: n < 0})
		return true
	})
	return keys
}

// SortDocuments sorts docs in place, stably, by keys. A missing field
// compares equal to the empty string against strings and sorts before
// every other value.
func SortDocuments(docs []*document.Document, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b *document.Document) int {
		for _, k := range keys {
			c := compareField(a, b, k.Field)
			if c == 0 {
				continue
			}
			if k.Desc {
				return -c
			}
			return c
		}
		return 0
	})
}

func compareField(a, b *document.Document, field string) int {
	av, aok := a.Lookup(field)
	bv, bok := b.Lookup(field)
	switch {
	case aok && bok:
		return document.Compare(av, bv)
	case !aok && !bok:
		return 0
	case !aok:
		return compareMissing(bv)
	default:
		return -compareMissing(av)
	}
}

// compareMissing orders a missing field against a present value.
func compareMissing(v document.Value) int {
	if v.Kind() == document.KindString {
		return document.Compare(document.String(""), v)
	}
	return -1
}
