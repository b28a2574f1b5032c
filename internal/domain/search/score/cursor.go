package score

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
)

// Cursor marks the last item of a page: its score and, when known, its
// identity used to break score ties.
type Cursor struct {
	score  float64
	key    document.Value
	hasKey bool
}

// NewCursor creates a cursor with a tiebreaker key.
func NewCursor(score float64, key document.Value) Cursor {
	return Cursor{score: score, key: key.Clone(), hasKey: true}
}

// Score returns the boundary score.
func (c Cursor) Score() float64 { return c.score }

// Key returns the tiebreaker key and whether the cursor carries one.
func (c Cursor) Key() (document.Value, bool) { return c.key, c.hasKey }

// Encode returns the opaque URL-safe token.
func (c Cursor) Encode() string {
	s := strconv.FormatFloat(c.score, 'g', -1, 64)
	if !c.hasKey {
		return s
	}
	raw, _ := c.key.MarshalJSON()
	return base64.RawURLEncoding.EncodeToString([]byte(s + "|" + string(raw)))
}

// ParseCursor decodes a token produced by Encode. A bare decimal score is
// also accepted; such a cursor has no tiebreaker.
func ParseCursor(token string) (Cursor, error) {
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return Cursor{score: f}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %w", domain.ErrInvalidCursor, err)
	}
	sep := bytes.IndexByte(raw, '|')
	if sep < 0 {
		return Cursor{}, fmt.Errorf("%w: missing separator", domain.ErrInvalidCursor)
	}
	f, err := strconv.ParseFloat(string(raw[:sep]), 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: score: %w", domain.ErrInvalidCursor, err)
	}
	var key document.Value
	if err := json.Unmarshal(raw[sep+1:], &key); err != nil {
		return Cursor{}, fmt.Errorf("%w: key: %w", domain.ErrInvalidCursor, err)
	}
	return Cursor{score: f, key: key, hasKey: true}, nil
}

// After returns the filter selecting rows that sort strictly after the
// cursor under {score: -1, <keyField>: 1}.
func (c Cursor) After(scoreField, keyField string) filter.Filter {
	below := filter.New(filter.Where(scoreField, filter.Lt(c.score)))
	if !c.hasKey {
		return below
	}

	var tie filter.Clause
	if c.key.IsNull() {
		// Null sorts before every string, so any string key follows it.
		tie = filter.Where(keyField, filter.Gte(""))
	} else {
		tie = filter.Where(keyField, filter.Gt(c.key))
	}
	return filter.New(filter.AnyOf(
		below,
		filter.New(filter.Eq(scoreField, c.score), tie),
	))
}
