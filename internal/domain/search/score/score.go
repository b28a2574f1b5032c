// Package score assigns deterministic text relevance scores and encodes
// the pagination cursors built on them.
package score

import (
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Relevance levels, highest first.
const (
	Exact        = 1.0
	Prefix       = 0.9
	NameContains = 0.8
	BodyContains = 0.6
	Weak         = 0.3
	Neutral      = 0.5
)

// Default field names for cards.
const (
	NameField = "name"
	BodyField = "oracle_text"
)

// Scorer scores documents against a search phrase using a name field and
// a body text field.
type Scorer struct {
	nameField string
	bodyField string
}

// New creates a scorer over the given fields.
func New(nameField, bodyField string) Scorer {
	return Scorer{nameField: nameField, bodyField: bodyField}
}

// Default scores cards by name and oracle text.
var Default = New(NameField, BodyField)

// Score returns a value in [0, 1]. An empty phrase scores Neutral. Matching
// is case-insensitive; non-string fields are treated as empty.
func (s Scorer) Score(doc *document.Document, phrase string) float64 {
	if phrase == "" {
		return Neutral
	}
	search := strings.ToLower(phrase)
	name := s.text(doc, s.nameField)
	body := s.text(doc, s.bodyField)

	switch {
	case name == search:
		return Exact
	case strings.HasPrefix(name, search):
		return Prefix
	case strings.Contains(name, search):
		return NameContains
	case strings.Contains(body, search):
		return BodyContains
	default:
		return Weak
	}
}

func (s Scorer) text(doc *document.Document, field string) string {
	v, ok := doc.Lookup(field)
	if !ok {
		return ""
	}
	str, _ := v.AsString()
	return strings.ToLower(str)
}
