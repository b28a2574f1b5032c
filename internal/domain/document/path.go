package document

import (
	"strconv"
	"strings"
)

// Lookup resolves a field path. A top-level key that literally matches path
// wins; otherwise dotted segments walk nested documents and array indexes.
func (d *Document) Lookup(path string) (Value, bool) {
	if v, ok := d.Get(path); ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return Value{}, false
	}
	cur := Object(d)
	for _, seg := range strings.Split(path, ".") {
		next, ok := child(cur, seg)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

func child(v Value, seg string) (Value, bool) {
	switch v.kind {
	case KindObject:
		return v.obj.Get(seg)
	case KindArray:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v.arr) {
			return Value{}, false
		}
		return v.arr[i], true
	}
	return Value{}, false
}

// SetPath assigns a value at a dotted path, creating intermediate documents
// as needed. Array segments must address an existing index. It reports
// whether the assignment happened.
func (d *Document) SetPath(path string, v Value) bool {
	if d.Has(path) || !strings.Contains(path, ".") {
		d.Set(path, v)
		return true
	}
	return d.SetAt(strings.Split(path, "."), v)
}

// SetAt is SetPath over pre-split segments. Keys containing dots are
// addressed unambiguously.
func (d *Document) SetAt(segs []string, v Value) bool {
	if len(segs) == 0 {
		return false
	}
	return setIn(d, segs, v)
}

func setIn(d *Document, segs []string, v Value) bool {
	head := segs[0]
	if len(segs) == 1 {
		d.Set(head, v)
		return true
	}
	cur, ok := d.Get(head)
	if !ok || cur.IsNull() {
		nested := New()
		if !setIn(nested, segs[1:], v) {
			return false
		}
		d.Set(head, Object(nested))
		return true
	}
	switch cur.kind {
	case KindObject:
		return setIn(cur.obj, segs[1:], v)
	case KindArray:
		return setInArray(cur.arr, segs[1:], v)
	}
	return false
}

func setInArray(arr []Value, segs []string, v Value) bool {
	i, err := strconv.Atoi(segs[0])
	if err != nil || i < 0 || i >= len(arr) {
		return false
	}
	if len(segs) == 1 {
		arr[i] = v
		return true
	}
	switch arr[i].kind {
	case KindObject:
		return setIn(arr[i].obj, segs[1:], v)
	case KindArray:
		return setInArray(arr[i].arr, segs[1:], v)
	}
	return false
}

// UnsetPath removes the field at a dotted path. Array elements are set to
// null rather than removed so that sibling positions stay stable.
func (d *Document) UnsetPath(path string) bool {
	if d.Delete(path) {
		return true
	}
	if !strings.Contains(path, ".") {
		return false
	}
	return d.UnsetAt(strings.Split(path, "."))
}

// UnsetAt is UnsetPath over pre-split segments.
func (d *Document) UnsetAt(segs []string) bool {
	if len(segs) == 0 {
		return false
	}
	last := segs[len(segs)-1]
	if len(segs) == 1 {
		return d.Delete(last)
	}

	parent := Object(d)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := child(parent, seg)
		if !ok {
			return false
		}
		parent = next
	}
	switch parent.kind {
	case KindObject:
		return parent.obj.Delete(last)
	case KindArray:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(parent.arr) {
			return false
		}
		parent.arr[i] = Null()
		return true
	}
	return false
}
