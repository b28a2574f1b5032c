// Package filter implements the document predicate language: field
// equality, per-field operator maps, $or/$and combinators and a simplified
// $text search. Malformed input never produces an error; it parses into
// clauses that do not match.
package filter

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Op is a field operator.
type Op uint8

// Field operators.
const (
	OpEq Op = iota
	OpRegex
	OpIn
	OpNin
	OpAll
	OpSize
	OpGt
	OpGte
	OpLt
	OpLte
	OpExists
	// OpInvalid marks an unknown or malformed operator. It never matches.
	OpInvalid
)

var opNames = map[Op]string{
	OpEq:     "$eq",
	OpRegex:  "$regex",
	OpIn:     "$in",
	OpNin:    "$nin",
	OpAll:    "$all",
	OpSize:   "$size",
	OpGt:     "$gt",
	OpGte:    "$gte",
	OpLt:     "$lt",
	OpLte:    "$lte",
	OpExists: "$exists",
}

// String returns the wire name of the operator.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "$invalid"
}

func opByName(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return OpInvalid, false
}

// Condition is one operator applied to a field value.
type Condition struct {
	op      Op
	operand document.Value
	options string
	re      *regexp.Regexp
	raw     string
}

// Op returns the operator.
func (c Condition) Op() Op { return c.op }

// Operand returns the operator argument.
func (c Condition) Operand() document.Value { return c.operand }

// Clause is one top-level entry of a filter. The set of clause types is closed.
type Clause interface {
	clause()
}

// Equals is the literal shorthand {field: value}. An absent field never matches.
type Equals struct {
	Field string
	Value document.Value
}

// Field applies every condition to the same field (implicit AND).
type Field struct {
	Field      string
	Conditions []Condition
}

// Or matches when any branch matches.
type Or struct {
	Branches []Filter
}

// And matches when every branch matches.
type And struct {
	Branches []Filter
}

// Text is a case-insensitive substring search over the whole document.
type Text struct {
	Phrase string
}

// Invalid is a clause that could not be understood. It never matches.
type Invalid struct {
	Key    string
	Reason string
}

func (Equals) clause()  {}
func (Field) clause()   {}
func (Or) clause()      {}
func (And) clause()     {}
func (Text) clause()    {}
func (Invalid) clause() {}

// Filter is a conjunction of clauses. The zero Filter matches every document.
type Filter struct {
	clauses []Clause
}

// New creates a filter from clauses.
func New(clauses ...Clause) Filter {
	return Filter{clauses: clauses}
}

// Clauses returns the top-level clauses.
func (f Filter) Clauses() []Clause { return f.clauses }

// IsEmpty reports whether the filter has no clauses.
func (f Filter) IsEmpty() bool { return len(f.clauses) == 0 }

// And returns a new filter with extra clauses appended.
func (f Filter) And(clauses ...Clause) Filter {
	out := make([]Clause, 0, len(f.clauses)+len(clauses))
	out = append(out, f.clauses...)
	out = append(out, clauses...)
	return Filter{clauses: out}
}

// Eq builds the literal shorthand clause.
func Eq(field string, v any) Clause {
	return Equals{Field: field, Value: document.FromAny(v)}
}

// Where builds an operator clause for a field.
func Where(field string, conds ...Condition) Clause {
	return Field{Field: field, Conditions: conds}
}

// AnyOf builds an $or clause.
func AnyOf(branches ...Filter) Clause { return Or{Branches: branches} }

// AllOf builds an $and clause.
func AllOf(branches ...Filter) Clause { return And{Branches: branches} }

// Search builds a $text clause.
func Search(phrase string) Clause { return Text{Phrase: phrase} }

// Regex builds a $regex condition. Options may contain i, m and s.
func Regex(pattern, options string) Condition {
	return newCondition(OpRegex, document.String(pattern), options)
}

// EqualTo builds an explicit $eq condition. An absent field compares as null.
func EqualTo(v any) Condition { return newCondition(OpEq, document.FromAny(v), "") }

// In builds a $in condition.
func In(values ...any) Condition { return newCondition(OpIn, list(values), "") }

// Nin builds a $nin condition.
func Nin(values ...any) Condition { return newCondition(OpNin, list(values), "") }

// All builds a $all condition.
func All(values ...any) Condition { return newCondition(OpAll, list(values), "") }

// Size builds a $size condition.
func Size(n int) Condition { return newCondition(OpSize, document.Int(n), "") }

// Gt builds a $gt condition.
func Gt(v any) Condition { return newCondition(OpGt, document.FromAny(v), "") }

// Gte builds a $gte condition.
func Gte(v any) Condition { return newCondition(OpGte, document.FromAny(v), "") }

// Lt builds a $lt condition.
func Lt(v any) Condition { return newCondition(OpLt, document.FromAny(v), "") }

// Lte builds a $lte condition.
func Lte(v any) Condition { return newCondition(OpLte, document.FromAny(v), "") }

// Exists builds a $exists condition.
func Exists(present bool) Condition { return newCondition(OpExists, document.Bool(present), "") }

func list(values []any) document.Value {
	items := make([]document.Value, len(values))
	for i, v := range values {
		items[i] = document.FromAny(v)
	}
	return document.Array(items...)
}

func newCondition(op Op, operand document.Value, options string) Condition {
	c := Condition{op: op, operand: operand, options: options}
	if op != OpRegex {
		return c
	}
	pattern, ok := operand.AsString()
	if !ok {
		return Condition{op: OpInvalid, operand: operand, options: options, raw: OpRegex.String()}
	}
	re, err := regexp.Compile(regexFlags(options) + pattern)
	if err != nil {
		return Condition{op: OpInvalid, operand: operand, options: options, raw: OpRegex.String()}
	}
	c.re = re
	return c
}

func regexFlags(options string) string {
	var flags strings.Builder
	for _, f := range "ims" {
		if strings.ContainsRune(options, f) {
			flags.WriteRune(f)
		}
	}
	if flags.Len() == 0 {
		return ""
	}
	return "(?" + flags.String() + ")"
}
