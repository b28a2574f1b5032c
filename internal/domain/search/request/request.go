package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/search/mode"
	"github.com/kailas-cloud/docdex/internal/domain/search/score"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search text length.
	MaxQueryLength  = 512
	DefaultLang     = "en"
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Limits bounds the page size of a request.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultLimits are used when no configuration overrides them.
var DefaultLimits = Limits{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize}

var validColors = map[string]bool{"W": true, "U": true, "B": true, "R": true, "G": true}

// Params are the raw search inputs as received from a client.
type Params struct {
	Text      string
	Lang      string
	Cursor    string
	PageSize  int
	Sets      []string
	Colors    []string
	ColorMode mode.Mode
	CMCMin    *float64
	CMCMax    *float64
	Types     []string
	Rarities  []string
}

// Request is a validated card search.
type Request struct {
	text      string
	lang      string
	cursor    *score.Cursor
	pageSize  int
	sets      []string
	colors    []string
	colorMode mode.Mode
	hasColors bool
	cmcMin    *float64
	cmcMax    *float64
	types     []string
	rarities  []string
}

// New validates and normalizes search parameters.
// Defaults: lang=en, color mode=or, page size from lim. Oversized pages are clamped.
func New(p Params, lim Limits) (Request, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return Request{}, domain.NewValidationError("text", "is required")
	}
	if len(text) > MaxQueryLength {
		return Request{}, domain.NewValidationError("text", fmt.Sprintf("too long (max %d chars)", MaxQueryLength))
	}

	r := Request{
		text:      text,
		lang:      p.Lang,
		colorMode: p.ColorMode,
		cmcMin:    p.CMCMin,
		cmcMax:    p.CMCMax,
		sets:      nonEmpty(p.Sets),
		types:     nonEmpty(p.Types),
		rarities:  lower(nonEmpty(p.Rarities)),
	}
	if r.lang == "" {
		r.lang = DefaultLang
	}
	if r.colorMode == "" {
		r.colorMode = mode.Or
	}
	if !r.colorMode.IsValid() {
		return Request{}, domain.NewValidationError("color_operator", fmt.Sprintf("invalid value %q", p.ColorMode))
	}

	colors, err := normalizeColors(p.Colors)
	if err != nil {
		return Request{}, err
	}
	r.colors = colors
	// An explicit empty list with exactly means colourless.
	r.hasColors = len(colors) > 0 || (p.Colors != nil && r.colorMode == mode.Exactly)

	if r.cmcMin != nil && *r.cmcMin < 0 {
		return Request{}, domain.NewValidationError("cmc_min", "must be non-negative")
	}
	if r.cmcMax != nil && *r.cmcMax < 0 {
		return Request{}, domain.NewValidationError("cmc_max", "must be non-negative")
	}
	if r.cmcMin != nil && r.cmcMax != nil && *r.cmcMin > *r.cmcMax {
		return Request{}, domain.NewValidationError("cmc_min", "must not exceed cmc_max")
	}

	if p.Cursor != "" {
		c, err := score.ParseCursor(p.Cursor)
		if err != nil {
			return Request{}, err
		}
		r.cursor = &c
	}

	if lim.DefaultPageSize <= 0 {
		lim.DefaultPageSize = DefaultPageSize
	}
	if lim.MaxPageSize <= 0 {
		lim.MaxPageSize = MaxPageSize
	}
	r.pageSize = p.PageSize
	if r.pageSize <= 0 {
		r.pageSize = lim.DefaultPageSize
	}
	if r.pageSize > lim.MaxPageSize {
		r.pageSize = lim.MaxPageSize
	}
	return r, nil
}

func normalizeColors(in []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if !validColors[c] {
			return nil, domain.NewValidationError("colors", fmt.Sprintf("unknown colour %q", c))
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lower(in []string) []string {
	for i, s := range in {
		in[i] = strings.ToLower(s)
	}
	return in
}

// Text returns the search phrase.
func (r *Request) Text() string { return r.text }

// Lang returns the printing language.
func (r *Request) Lang() string { return r.lang }

// Cursor returns the pagination cursor, nil on the first page.
func (r *Request) Cursor() *score.Cursor { return r.cursor }

// PageSize returns the number of results per page.
func (r *Request) PageSize() int { return r.pageSize }

// Sets returns the set names to restrict to.
func (r *Request) Sets() []string { return r.sets }

// Colors returns the normalized colour letters and whether a colour filter applies.
func (r *Request) Colors() ([]string, bool) { return r.colors, r.hasColors }

// ColorMode returns how colours combine.
func (r *Request) ColorMode() mode.Mode { return r.colorMode }

// CMCRange returns the optional mana value bounds.
func (r *Request) CMCRange() (lo, hi *float64) { return r.cmcMin, r.cmcMax }

// Types returns type line fragments; a card matches any of them.
func (r *Request) Types() []string { return r.types }

// Rarities returns the rarities to restrict to.
func (r *Request) Rarities() []string { return r.rarities }
