package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/mode"
	"github.com/kailas-cloud/docdex/internal/domain/search/score"
)

func ptr(f float64) *float64 { return &f }

func TestNew_Defaults(t *testing.T) {
	r, err := New(Params{Text: "  bolt "}, DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Text() != "bolt" {
		t.Errorf("Text() = %q", r.Text())
	}
	if r.Lang() != "en" {
		t.Errorf("Lang() = %q, want en", r.Lang())
	}
	if r.ColorMode() != mode.Or {
		t.Errorf("ColorMode() = %q, want or", r.ColorMode())
	}
	if r.PageSize() != DefaultPageSize {
		t.Errorf("PageSize() = %d", r.PageSize())
	}
	if r.Cursor() != nil {
		t.Error("Cursor() should be nil on first page")
	}
	if _, ok := r.Colors(); ok {
		t.Error("no colour filter expected")
	}
}

func TestNew_PageSize(t *testing.T) {
	lim := Limits{DefaultPageSize: 20, MaxPageSize: 50}
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-3, 20},
		{7, 7},
		{500, 50},
	}
	for _, tt := range tests {
		r, err := New(Params{Text: "x", PageSize: tt.in}, lim)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.PageSize() != tt.want {
			t.Errorf("PageSize(%d) = %d, want %d", tt.in, r.PageSize(), tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		p     Params
		field string
	}{
		{"empty text", Params{Text: "   "}, "text"},
		{"long text", Params{Text: strings.Repeat("a", MaxQueryLength+1)}, "text"},
		{"bad mode", Params{Text: "x", ColorMode: "xor"}, "color_operator"},
		{"bad colour", Params{Text: "x", Colors: []string{"P"}}, "colors"},
		{"negative cmc", Params{Text: "x", CMCMin: ptr(-1)}, "cmc_min"},
		{"negative max", Params{Text: "x", CMCMax: ptr(-1)}, "cmc_max"},
		{"inverted range", Params{Text: "x", CMCMin: ptr(5), CMCMax: ptr(2)}, "cmc_min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.p, DefaultLimits)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestNew_Colors(t *testing.T) {
	r, err := New(Params{Text: "x", Colors: []string{"w", " U", "W", ""}, ColorMode: mode.And}, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	colors, ok := r.Colors()
	if !ok || strings.Join(colors, ",") != "W,U" {
		t.Errorf("Colors() = %v, %v", colors, ok)
	}

	colourless, err := New(Params{Text: "x", Colors: []string{}, ColorMode: mode.Exactly}, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	if colors, ok := colourless.Colors(); !ok || len(colors) != 0 {
		t.Errorf("exactly with no colours should filter colourless, got %v %v", colors, ok)
	}

	orEmpty, _ := New(Params{Text: "x", Colors: []string{}}, DefaultLimits)
	if _, ok := orEmpty.Colors(); ok {
		t.Error("or with no colours should not filter")
	}
}

func TestNew_Cursor(t *testing.T) {
	token := score.NewCursor(0.8, document.String("oracle-1")).Encode()
	r, err := New(Params{Text: "x", Cursor: token}, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	if r.Cursor() == nil || r.Cursor().Score() != 0.8 {
		t.Errorf("Cursor() = %+v", r.Cursor())
	}

	_, err = New(Params{Text: "x", Cursor: "%%%"}, DefaultLimits)
	if !errors.Is(err, domain.ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestNew_ListsNormalized(t *testing.T) {
	r, err := New(Params{
		Text:     "angel",
		Sets:     []string{"Dominaria", " "},
		Types:    []string{"Creature", ""},
		Rarities: []string{"Rare", "MYTHIC"},
	}, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Sets()) != 1 || len(r.Types()) != 1 {
		t.Errorf("blank entries kept: sets=%v types=%v", r.Sets(), r.Types())
	}
	if strings.Join(r.Rarities(), ",") != "rare,mythic" {
		t.Errorf("Rarities() = %v", r.Rarities())
	}
}
