package pipeline

import (
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// FieldMode says what a projection entry does.
type FieldMode uint8

// Projection entry modes.
const (
	Include FieldMode = iota
	Exclude
	// Compute copies the value found at Path.
	Compute
	// TextScore attaches the relevance score of the run's search phrase.
	TextScore
)

// ProjectionField is one entry of a projection.
type ProjectionField struct {
	Name string
	Mode FieldMode
	Path string
}

// Projection selects, drops and computes fields.
type Projection struct {
	fields []ProjectionField
}

// NewProjection creates a projection from entries.
func NewProjection(fields ...ProjectionField) Projection {
	return Projection{fields: fields}
}

// IncludeFields is a shorthand for an inclusion projection.
func IncludeFields(names ...string) Projection {
	fields := make([]ProjectionField, len(names))
	for i, n := range names {
		fields[i] = ProjectionField{Name: n, Mode: Include}
	}
	return Projection{fields: fields}
}

// Fields returns the projection entries.
func (p Projection) Fields() []ProjectionField { return p.fields }

// IsEmpty reports whether the projection has no entries.
func (p Projection) IsEmpty() bool { return len(p.fields) == 0 }

// ParseProjection reads {field: 1|0|true|false|"$path"|{"$meta":"textScore"}}.
// Entries with any other value are ignored.
func ParseProjection(spec *document.Document) Projection {
	var fields []ProjectionField
	spec.Range(func(name string, v document.Value) bool {
		if f, ok := parseProjectionField(name, v); ok {
			fields = append(fields, f)
		}
		return true
	})
	return Projection{fields: fields}
}

func parseProjectionField(name string, v document.Value) (ProjectionField, bool) {
	switch v.Kind() {
	case document.KindNumber:
		n, _ := v.AsNumber()
		if n == 0 {
			return ProjectionField{Name: name, Mode: Exclude}, true
		}
		return ProjectionField{Name: name, Mode: Include}, true
	case document.KindBool:
		b, _ := v.AsBool()
		if !b {
			return ProjectionField{Name: name, Mode: Exclude}, true
		}
		return ProjectionField{Name: name, Mode: Include}, true
	case document.KindString:
		s, _ := v.AsString()
		if strings.HasPrefix(s, "$") && len(s) > 1 {
			return ProjectionField{Name: name, Mode: Compute, Path: s[1:]}, true
		}
	case document.KindObject:
		if isTextScoreMeta(v) {
			return ProjectionField{Name: name, Mode: TextScore}, true
		}
	}
	return ProjectionField{}, false
}

func isTextScoreMeta(v document.Value) bool {
	obj, ok := v.AsObject()
	if !ok || obj.Len() != 1 {
		return false
	}
	meta, ok := obj.Get("$meta")
	if !ok {
		return false
	}
	s, _ := meta.AsString()
	return s == "textScore"
}

// inclusion reports whether the projection selects fields rather than
// dropping them. Any include or compute entry, _id included, makes it
// inclusive.
func (p Projection) inclusion() bool {
	for _, f := range p.fields {
		if f.Mode == Include || f.Mode == Compute {
			return true
		}
	}
	return false
}

func (p Projection) excludesID() bool {
	for _, f := range p.fields {
		if f.Name == document.IDField && f.Mode == Exclude {
			return true
		}
	}
	return false
}

// scoreFields returns the names that should receive the text score:
// explicit {$meta: "textScore"} entries and a plain "score: 1".
func (p Projection) scoreFields() []string {
	var out []string
	for _, f := range p.fields {
		if f.Mode == TextScore || (f.Mode == Include && f.Name == "score") {
			out = append(out, f.Name)
		}
	}
	return out
}

// Apply returns a projected copy of doc. The input is not modified.
func (p Projection) Apply(doc *document.Document) *document.Document {
	if p.IsEmpty() {
		return doc.Clone()
	}
	if !p.inclusion() {
		out := doc.Clone()
		for _, f := range p.fields {
			if f.Mode == Exclude {
				out.UnsetPath(f.Name)
			}
		}
		return out
	}

	out := document.New()
	if !p.excludesID() {
		if id, ok := doc.Get(document.IDField); ok {
			out.Set(document.IDField, id.Clone())
		}
	}
	for _, f := range p.fields {
		switch f.Mode {
		case Include:
			if f.Name == document.IDField {
				continue
			}
			if v, ok := doc.Lookup(f.Name); ok {
				out.SetPath(f.Name, v.Clone())
			}
		case Compute:
			if v, ok := doc.Lookup(f.Path); ok {
				out.Set(f.Name, v.Clone())
			}
		}
	}
	return out
}
