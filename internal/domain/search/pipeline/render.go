package pipeline

import (
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Value renders the pipeline back into its array-of-stages form.
func (p Pipeline) Value() document.Value {
	items := make([]document.Value, len(p.stages))
	for i, s := range p.stages {
		items[i] = document.Object(renderStage(s))
	}
	return document.Array(items...)
}

// MarshalJSON implements json.Marshaler.
func (p Pipeline) MarshalJSON() ([]byte, error) {
	return p.Value().MarshalJSON()
}

func renderStage(s Stage) *document.Document {
	switch s := s.(type) {
	case Match:
		return document.New(document.F("$match", s.Filter.Document()))
	case Project:
		return document.New(document.F("$project", s.Projection.Document()))
	case Group:
		return document.New(document.F("$group", s.Spec.Document()))
	case Sort:
		spec := document.New()
		for _, k := range s.Keys {
			dir := 1
			if k.Desc {
				dir = -1
			}
			spec.Set(k.Field, document.Int(dir))
		}
		return document.New(document.F("$sort", spec))
	case Limit:
		return document.New(document.F("$limit", s.N))
	case Unsupported:
		return document.New(document.F(s.Name, nil))
	}
	return document.New()
}

// Document renders the projection spec.
func (p Projection) Document() *document.Document {
	out := document.New()
	for _, f := range p.fields {
		switch f.Mode {
		case Include:
			out.Set(f.Name, document.Int(1))
		case Exclude:
			out.Set(f.Name, document.Int(0))
		case Compute:
			out.Set(f.Name, document.String("$"+f.Path))
		case TextScore:
			out.Set(f.Name, textScoreMeta())
		}
	}
	return out
}

// Document renders the group spec.
func (g GroupSpec) Document() *document.Document {
	out := document.New(document.Field{Key: document.IDField, Value: g.ID.value()})
	for _, f := range g.Fields {
		out.Set(f.Name, document.Object(document.New(document.Field{Key: f.Acc.String(), Value: f.Expr.value()})))
	}
	return out
}

func (e Expr) value() document.Value {
	switch e.kind {
	case exprPath:
		return document.String("$" + e.path)
	case exprRoot:
		return document.String(RootVar)
	case exprScore:
		return textScoreMeta()
	}
	return e.lit.Clone()
}

func textScoreMeta() document.Value {
	return document.Object(document.New(document.F("$meta", "textScore")))
}
