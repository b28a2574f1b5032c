package filter

import (
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Parse converts a filter document such as
// {"colors": {"$all": ["W"], "$size": 1}, "$or": [...]} into a Filter.
// Unknown keys and malformed operands become clauses or conditions that
// never match.
func Parse(doc *document.Document) Filter {
	var clauses []Clause
	doc.Range(func(key string, v document.Value) bool {
		clauses = append(clauses, parseClause(key, v))
		return true
	})
	return Filter{clauses: clauses}
}

// ParseValue is Parse for an arbitrary value. Non-documents yield a filter
// that never matches.
func ParseValue(v document.Value) Filter {
	obj, ok := v.AsObject()
	if !ok {
		return New(Invalid{Reason: "filter must be a document"})
	}
	return Parse(obj)
}

func parseClause(key string, v document.Value) Clause {
	switch key {
	case "$or":
		branches, ok := parseBranches(v)
		if !ok {
			return Invalid{Key: key, Reason: "expects an array of documents"}
		}
		return Or{Branches: branches}
	case "$and":
		branches, ok := parseBranches(v)
		if !ok {
			return Invalid{Key: key, Reason: "expects an array of documents"}
		}
		return And{Branches: branches}
	case "$text":
		return parseText(v)
	}

	if strings.HasPrefix(key, "$") {
		return Invalid{Key: key, Reason: "unknown top-level operator"}
	}

	obj, ok := v.AsObject()
	if !ok || obj.Len() == 0 {
		return Equals{Field: key, Value: v.Clone()}
	}

	operators := 0
	for _, k := range obj.Keys() {
		if strings.HasPrefix(k, "$") {
			operators++
		}
	}
	switch operators {
	case 0:
		return Equals{Field: key, Value: v.Clone()}
	case obj.Len():
		return Field{Field: key, Conditions: parseConditions(obj)}
	default:
		return Invalid{Key: key, Reason: "operators mixed with plain fields"}
	}
}

func parseBranches(v document.Value) ([]Filter, bool) {
	items, ok := v.AsArray()
	if !ok {
		return nil, false
	}
	branches := make([]Filter, 0, len(items))
	for _, item := range items {
		obj, ok := item.AsObject()
		if !ok {
			return nil, false
		}
		branches = append(branches, Parse(obj))
	}
	return branches, true
}

func parseText(v document.Value) Clause {
	obj, ok := v.AsObject()
	if !ok {
		return Invalid{Key: "$text", Reason: "expects a document"}
	}
	search, ok := obj.Get("$search")
	if !ok {
		return Invalid{Key: "$text", Reason: "missing $search"}
	}
	phrase, ok := search.AsString()
	if !ok {
		return Invalid{Key: "$text", Reason: "$search must be a string"}
	}
	return Text{Phrase: phrase}
}

func parseConditions(obj *document.Document) []Condition {
	var options string
	if v, ok := obj.Get("$options"); ok {
		options, _ = v.AsString()
	}

	var conds []Condition
	obj.Range(func(name string, operand document.Value) bool {
		if name == "$options" {
			return true
		}
		op, ok := opByName(name)
		if !ok {
			conds = append(conds, Condition{op: OpInvalid, operand: operand.Clone(), raw: name})
			return true
		}
		conds = append(conds, newCondition(op, operand.Clone(), options))
		return true
	})
	if len(conds) == 0 {
		conds = append(conds, Condition{op: OpInvalid, raw: "$options"})
	}
	return conds
}
