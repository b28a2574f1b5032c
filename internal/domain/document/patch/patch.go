// Package patch computes and applies field-level differences between two
// versions of a document.
package patch

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Op is the kind of change.
type Op uint8

// Change kinds.
const (
	OpSet Op = iota
	OpUnset
)

// String returns the op name.
func (o Op) String() string {
	if o == OpUnset {
		return "unset"
	}
	return "set"
}

// Change is a single field modification addressed by path segments.
type Change struct {
	segs  []string
	op    Op
	value document.Value
}

// Path returns the dotted path of the changed field.
func (c Change) Path() string { return strings.Join(c.segs, ".") }

// Segments returns the path segments.
func (c Change) Segments() []string { return c.segs }

// Op returns the change kind.
func (c Change) Op() Op { return c.op }

// Value returns the new value. It is null for unsets.
func (c Change) Value() document.Value { return c.value }

// Patch is an ordered list of changes. The zero value is an empty patch.
type Patch struct {
	changes []Change
}

// Changes returns the changes in order.
func (p Patch) Changes() []Change { return p.changes }

// Len returns the number of changes.
func (p Patch) Len() int { return len(p.changes) }

// Empty reports whether there is nothing to apply.
func (p Patch) Empty() bool { return len(p.changes) == 0 }

// Paths returns the dotted paths of all changes.
func (p Patch) Paths() []string {
	out := make([]string, len(p.changes))
	for i, c := range p.changes {
		out[i] = c.Path()
	}
	return out
}

// Diff returns the changes that turn old into updated. Top-level keys listed
// in skip are neither set nor unset. Nested documents are diffed
// recursively; arrays of equal length are diffed by position and arrays of
// different length are replaced whole. Keys present in old but missing from
// updated become unsets.
func Diff(old, updated *document.Document, skip ...string) Patch {
	skipped := make(map[string]struct{}, len(skip))
	for _, k := range skip {
		skipped[k] = struct{}{}
	}

	var p Patch
	for _, k := range updated.Keys() {
		if _, ok := skipped[k]; ok {
			continue
		}
		nv, _ := updated.Get(k)
		ov, exists := old.Get(k)
		if !exists {
			p.set([]string{k}, nv)
			continue
		}
		p.diffValue([]string{k}, ov, nv)
	}
	for _, k := range old.Keys() {
		if _, ok := skipped[k]; ok {
			continue
		}
		if !updated.Has(k) {
			p.changes = append(p.changes, Change{segs: []string{k}, op: OpUnset})
		}
	}
	return p
}

func (p *Patch) diffValue(segs []string, ov, nv document.Value) {
	if oo, ok := ov.AsObject(); ok {
		if no, ok := nv.AsObject(); ok {
			p.diffObject(segs, oo, no)
			return
		}
	}
	if oa, ok := ov.AsArray(); ok {
		if na, ok := nv.AsArray(); ok && len(oa) == len(na) {
			for i := range na {
				p.diffValue(child(segs, strconv.Itoa(i)), oa[i], na[i])
			}
			return
		}
	}
	if !ov.Equal(nv) {
		p.set(segs, nv)
	}
}

func (p *Patch) diffObject(segs []string, old, updated *document.Document) {
	for _, k := range updated.Keys() {
		nv, _ := updated.Get(k)
		ov, exists := old.Get(k)
		if !exists {
			p.set(child(segs, k), nv)
			continue
		}
		p.diffValue(child(segs, k), ov, nv)
	}
	for _, k := range old.Keys() {
		if !updated.Has(k) {
			p.changes = append(p.changes, Change{segs: child(segs, k), op: OpUnset})
		}
	}
}

func (p *Patch) set(segs []string, v document.Value) {
	p.changes = append(p.changes, Change{segs: segs, op: OpSet, value: v.Clone()})
}

func child(segs []string, seg string) []string {
	out := make([]string, len(segs)+1)
	copy(out, segs)
	out[len(segs)] = seg
	return out
}

// Apply writes the changes into doc in order.
func (p Patch) Apply(doc *document.Document) {
	for _, c := range p.changes {
		switch c.op {
		case OpSet:
			doc.SetAt(c.segs, c.value.Clone())
		case OpUnset:
			doc.UnsetAt(c.segs)
		}
	}
}
