package pipeline

import (
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// RootVar refers to the whole current document.
const RootVar = "$$ROOT"

// Accumulator is a group accumulator kind.
type Accumulator uint8

// Supported accumulators.
const (
	First Accumulator = iota
	Sum
	Max
	AddToSet
)

var accumulatorNames = map[string]Accumulator{
	"$first":    First,
	"$sum":      Sum,
	"$max":      Max,
	"$addToSet": AddToSet,
}

// String returns the wire name of the accumulator.
func (a Accumulator) String() string {
	for name, acc := range accumulatorNames {
		if acc == a {
			return name
		}
	}
	return "$unknown"
}

type exprKind uint8

const (
	exprLiteral exprKind = iota
	exprPath
	exprRoot
	exprScore
)

// Expr is a group key or accumulator operand: a literal, a "$path"
// reference, "$$ROOT" or {"$meta": "textScore"}.
type Expr struct {
	kind exprKind
	path string
	lit  document.Value
}

// Literal is a constant expression.
func Literal(v any) Expr { return Expr{kind: exprLiteral, lit: document.FromAny(v)} }

// Path references a field of the current document.
func Path(path string) Expr { return Expr{kind: exprPath, path: path} }

// Root references the whole current document.
func Root() Expr { return Expr{kind: exprRoot} }

// ScoreMeta references the relevance score carried by the document.
func ScoreMeta() Expr { return Expr{kind: exprScore} }

// ParseExpr reads an operand value.
func ParseExpr(v document.Value) Expr {
	if s, ok := v.AsString(); ok {
		switch {
		case s == RootVar:
			return Root()
		case strings.HasPrefix(s, "$") && len(s) > 1 && !strings.HasPrefix(s, "$$"):
			return Path(s[1:])
		}
	}
	if isTextScoreMeta(v) {
		return ScoreMeta()
	}
	return Expr{kind: exprLiteral, lit: v.Clone()}
}

// eval returns the value of the expression for doc and whether it exists.
// The value may share storage with doc; callers clone what they keep.
func (e Expr) eval(doc *document.Document) (document.Value, bool) {
	switch e.kind {
	case exprPath:
		return doc.Lookup(e.path)
	case exprRoot:
		return document.Object(doc), true
	case exprScore:
		return doc.Lookup("score")
	}
	return e.lit, true
}

// GroupField is one output field computed by an accumulator.
type GroupField struct {
	Name string
	Acc  Accumulator
	Expr Expr
}

// GroupSpec describes a $group stage.
type GroupSpec struct {
	ID     Expr
	Fields []GroupField
}

// ParseGroup reads {_id: <expr>, field: {<accumulator>: <expr>}, ...}.
// Fields with unknown or malformed accumulators are skipped.
func ParseGroup(spec *document.Document) GroupSpec {
	out := GroupSpec{ID: Literal(nil)}
	spec.Range(func(name string, v document.Value) bool {
		if name == document.IDField {
			out.ID = ParseExpr(v)
			return true
		}
		obj, ok := v.AsObject()
		if !ok || obj.Len() != 1 {
			return true
		}
		accName := obj.Keys()[0]
		acc, ok := accumulatorNames[accName]
		if !ok {
			return true
		}
		operand, _ := obj.Get(accName)
		out.Fields = append(out.Fields, GroupField{Name: name, Acc: acc, Expr: ParseExpr(operand)})
		return true
	})
	return out
}

type accState struct {
	set   bool
	value document.Value
	sum   float64
	items []document.Value
	seen  map[string]struct{}
}

type groupState struct {
	id   document.Value
	accs []accState
}

func (g GroupSpec) apply(docs []*document.Document) []*document.Document {
	var order []*groupState
	groups := make(map[string]*groupState)

	for _, doc := range docs {
		id, ok := g.ID.eval(doc)
		if !ok {
			id = document.Null()
		}
		key := id.Key()
		st, ok := groups[key]
		if !ok {
			st = &groupState{id: id.Clone(), accs: make([]accState, len(g.Fields))}
			groups[key] = st
			order = append(order, st)
		}
		for i, f := range g.Fields {
			st.accs[i].add(f, doc)
		}
	}

	out := make([]*document.Document, 0, len(order))
	for _, st := range order {
		d := document.New()
		d.Set(document.IDField, st.id)
		for i, f := range g.Fields {
			if v, ok := st.accs[i].result(f.Acc); ok {
				d.Set(f.Name, v)
			}
		}
		out = append(out, d)
	}
	return out
}

func (a *accState) add(f GroupField, doc *document.Document) {
	v, present := f.Expr.eval(doc)
	switch f.Acc {
	case First:
		if !a.set {
			if !present {
				v = document.Null()
			}
			a.value = v.Clone()
			a.set = true
		}
	case Sum:
		a.set = true
		if n, ok := v.AsNumber(); ok && present {
			a.sum += n
		}
	case Max:
		if !present || v.IsNull() {
			return
		}
		if !a.set || document.Compare(v, a.value) > 0 {
			a.value = v.Clone()
			a.set = true
		}
	case AddToSet:
		a.set = true
		if !present {
			v = document.Null()
		}
		if a.seen == nil {
			a.seen = make(map[string]struct{})
		}
		k := v.Key()
		if _, dup := a.seen[k]; dup {
			return
		}
		a.seen[k] = struct{}{}
		a.items = append(a.items, v.Clone())
	}
}

func (a *accState) result(acc Accumulator) (document.Value, bool) {
	if !a.set {
		return document.Value{}, false
	}
	switch acc {
	case Sum:
		return document.Number(a.sum), true
	case AddToSet:
		return document.Array(a.items...), true
	}
	return a.value, true
}
