package filter

import (
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Recorder receives the phrase of every $text clause that is evaluated.
type Recorder interface {
	RecordTextSearch(phrase string)
}

// Matches reports whether doc satisfies the filter.
func (f Filter) Matches(doc *document.Document) bool {
	return f.Match(doc, nil)
}

// Match reports whether doc satisfies the filter, reporting $text phrases to
// rec when it is not nil. Clauses are evaluated in order and short-circuit.
func (f Filter) Match(doc *document.Document, rec Recorder) bool {
	for _, c := range f.clauses {
		if !matchClause(doc, c, rec) {
			return false
		}
	}
	return true
}

func matchClause(doc *document.Document, c Clause, rec Recorder) bool {
	switch c := c.(type) {
	case Equals:
		v, ok := doc.Lookup(c.Field)
		return ok && v.Equal(c.Value)
	case Field:
		v, present := doc.Lookup(c.Field)
		for _, cond := range c.Conditions {
			if !cond.eval(v, present) {
				return false
			}
		}
		return true
	case Or:
		for _, b := range c.Branches {
			if b.Match(doc, rec) {
				return true
			}
		}
		return false
	case And:
		for _, b := range c.Branches {
			if !b.Match(doc, rec) {
				return false
			}
		}
		return true
	case Text:
		phrase := strings.ToLower(c.Phrase)
		if rec != nil {
			rec.RecordTextSearch(phrase)
		}
		return strings.Contains(strings.ToLower(doc.String()), phrase)
	case Invalid:
		return false
	}
	return false
}

func (c Condition) eval(v document.Value, present bool) bool {
	switch c.op {
	case OpEq:
		return v.Equal(c.operand)
	case OpRegex:
		return present && c.re != nil && c.re.MatchString(v.Render())
	case OpIn:
		set, ok := c.operand.AsArray()
		if !ok {
			return false
		}
		if items, isArr := v.AsArray(); isArr {
			for _, item := range items {
				if contains(set, item) {
					return true
				}
			}
			return false
		}
		return contains(set, v)
	case OpNin:
		set, ok := c.operand.AsArray()
		return ok && !contains(set, v)
	case OpAll:
		want, ok := c.operand.AsArray()
		if !ok {
			return false
		}
		items, isArr := v.AsArray()
		if !isArr {
			return false
		}
		for _, w := range want {
			if !contains(items, w) {
				return false
			}
		}
		return true
	case OpSize:
		n, ok := c.operand.AsInt()
		if !ok || n < 0 {
			return false
		}
		items, isArr := v.AsArray()
		return isArr && len(items) == n
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		cmp, ok := compareOrdered(v, c.operand)
		if !ok {
			return false
		}
		switch c.op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpExists:
		want, ok := truthy(c.operand)
		return ok && present == want
	}
	return false
}

func contains(set []document.Value, v document.Value) bool {
	for _, s := range set {
		if s.Equal(v) {
			return true
		}
	}
	return false
}

// compareOrdered compares numbers with numbers and strings with strings.
// Any other pairing, null included, is not comparable.
func compareOrdered(a, b document.Value) (int, bool) {
	if a.Kind() != b.Kind() {
		return 0, false
	}
	switch a.Kind() {
	case document.KindNumber, document.KindString:
		return document.Compare(a, b), true
	}
	return 0, false
}

func truthy(v document.Value) (bool, bool) {
	if b, ok := v.AsBool(); ok {
		return b, true
	}
	if n, ok := v.AsNumber(); ok {
		return n != 0, true
	}
	return false, false
}
