package patch

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

var F = document.F

func TestDiff_Identical(t *testing.T) {
	a := document.New(F("id", "x"), F("name", "Bolt"), F("colors", []string{"R"}))
	p := Diff(a, a.Clone())
	if !p.Empty() {
		t.Errorf("expected empty patch, got %v", p.Paths())
	}
}

func TestDiff_TopLevel(t *testing.T) {
	old := document.New(F("_id", "1"), F("id", "x"), F("name", "Bolt"), F("gone", true))
	updated := document.New(F("_id", "2"), F("id", "x"), F("name", "Lightning Bolt"), F("new", 1))

	p := Diff(old, updated, document.IDField)

	got := strings.Join(p.Paths(), ",")
	if got != "name,new,gone" {
		t.Fatalf("paths = %q, want name,new,gone", got)
	}
	if p.Changes()[2].Op() != OpUnset {
		t.Errorf("gone op = %s", p.Changes()[2].Op())
	}
}

func TestDiff_NestedObject(t *testing.T) {
	old := document.New(F("image_uris", document.New(F("small", "a"), F("large", "b"))))
	updated := document.New(F("image_uris", document.New(F("small", "a"), F("large", "c"))))

	p := Diff(old, updated)
	if got := strings.Join(p.Paths(), ","); got != "image_uris.large" {
		t.Errorf("paths = %q", got)
	}
}

func TestDiff_Arrays(t *testing.T) {
	tests := []struct {
		name string
		old  []any
		new  []any
		want string
	}{
		{"same length positional", []any{"W", "U"}, []any{"W", "B"}, "colors.1"},
		{"different length replaced", []any{"W"}, []any{"W", "U"}, "colors"},
		{"nested objects", []any{map[string]any{"n": 1}}, []any{map[string]any{"n": 2}}, "colors.0.n"},
		{"unchanged", []any{"R"}, []any{"R"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := document.New(F("colors", tt.old))
			updated := document.New(F("colors", tt.new))
			p := Diff(old, updated)
			if got := strings.Join(p.Paths(), ","); got != tt.want {
				t.Errorf("paths = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiff_KindChange(t *testing.T) {
	old := document.New(F("prices", document.New(F("usd", "1"))))
	updated := document.New(F("prices", nil))

	p := Diff(old, updated)
	if p.Len() != 1 || p.Changes()[0].Path() != "prices" {
		t.Fatalf("paths = %v", p.Paths())
	}
	if !p.Changes()[0].Value().IsNull() {
		t.Error("expected null value")
	}
}

func TestApply_ConvergesToUpdated(t *testing.T) {
	old := document.New(
		F("_id", "keep"),
		F("id", "x"),
		F("name", "Bolt"),
		F("legalities", document.New(F("modern", "legal"), F("vintage", "legal"))),
		F("colors", []string{"R"}),
		F("faces", []any{map[string]any{"name": "a", "cost": 1}}),
		F("obsolete", 1),
	)
	updated := document.New(
		F("id", "x"),
		F("name", "Lightning Bolt"),
		F("legalities", document.New(F("modern", "banned"))),
		F("colors", []string{"R", "G"}),
		F("faces", []any{map[string]any{"name": "b", "cost": 1}}),
	)

	target := old.Clone()
	Diff(old, updated, document.IDField).Apply(target)

	want := updated.Clone()
	want.Set(document.IDField, document.String("keep"))
	if !target.Equal(want) {
		t.Errorf("applied = %s\nwant    = %s", target, want)
	}
}

func TestApply_DottedKeys(t *testing.T) {
	old := document.New(F("a.b", 1))
	updated := document.New(F("a.b", 2))

	target := old.Clone()
	Diff(old, updated).Apply(target)

	v, _ := target.Get("a.b")
	if n, _ := v.AsNumber(); n != 2 {
		t.Errorf("a.b = %v", n)
	}
	if target.Has("a") {
		t.Error("dotted key was split into a nested path")
	}
}

func TestApply_ValuesAreCopied(t *testing.T) {
	inner := document.New(F("usd", "1"))
	updated := document.New(F("prices", inner))

	target := document.New()
	Diff(document.New(), updated).Apply(target)
	inner.Set("usd", document.String("9"))

	v, _ := target.Lookup("prices.usd")
	if s, _ := v.AsString(); s != "1" {
		t.Errorf("prices.usd = %q, patch shares memory with source", s)
	}
}
