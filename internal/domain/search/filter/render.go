package filter

import (
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Document renders the filter back into its document form. Invalid clauses
// are rendered under their original key with a null operand.
func (f Filter) Document() *document.Document {
	out := document.New()
	for _, c := range f.clauses {
		switch c := c.(type) {
		case Equals:
			out.Set(c.Field, c.Value.Clone())
		case Field:
			out.Set(c.Field, document.Object(renderConditions(c.Conditions)))
		case Or:
			out.Set("$or", renderBranches(c.Branches))
		case And:
			out.Set("$and", renderBranches(c.Branches))
		case Text:
			out.Set("$text", document.Object(document.New(document.F("$search", c.Phrase))))
		case Invalid:
			if c.Key != "" {
				out.Set(c.Key, document.Null())
			}
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (f Filter) MarshalJSON() ([]byte, error) {
	return f.Document().MarshalJSON()
}

func renderBranches(branches []Filter) document.Value {
	items := make([]document.Value, len(branches))
	for i, b := range branches {
		items[i] = document.Object(b.Document())
	}
	return document.Array(items...)
}

func renderConditions(conds []Condition) *document.Document {
	out := document.New()
	for _, c := range conds {
		name := c.op.String()
		if c.op == OpInvalid {
			name = c.raw
		}
		out.Set(name, c.operand.Clone())
		if c.options != "" && (c.op == OpRegex || c.raw == OpRegex.String()) {
			out.Set("$options", document.String(c.options))
		}
	}
	return out
}
