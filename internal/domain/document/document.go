// Package document defines the schema-less record stored by the engine:
// an insertion-ordered mapping from field name to a tagged Value.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// IDField is the implicit identity field.
const IDField = "_id"

// Document is an ordered field -> Value mapping. Use New to create one;
// the zero value is also ready to use.
type Document struct {
	keys   []string
	fields map[string]Value
}

// Field is a key/value pair used by New.
type Field struct {
	Key   string
	Value Value
}

// F builds a Field from a plain Go value (see FromAny).
func F(key string, value any) Field {
	return Field{Key: key, Value: FromAny(value)}
}

// New creates a document with the given fields in order.
func New(fields ...Field) *Document {
	d := &Document{fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		d.Set(f.Key, f.Value)
	}
	return d
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the field names in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the value of a top-level field.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	v, ok := d.fields[key]
	return v, ok
}

// Has reports whether a top-level field is present (even if null).
func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set assigns a top-level field. New keys are appended; existing keys keep their position.
func (d *Document) Set(key string, v Value) {
	if d.fields == nil {
		d.fields = make(map[string]Value)
	}
	if _, ok := d.fields[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.fields[key] = v
}

// Delete removes a top-level field. It reports whether the field existed.
func (d *Document) Delete(key string) bool {
	if d == nil {
		return false
	}
	if _, ok := d.fields[key]; !ok {
		return false
	}
	delete(d.fields, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Range calls fn for each field in order until fn returns false.
func (d *Document) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.fields[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := &Document{
		keys:   make([]string, len(d.keys)),
		fields: make(map[string]Value, len(d.fields)),
	}
	copy(c.keys, d.keys)
	for k, v := range d.fields {
		c.fields[k] = v.Clone()
	}
	return c
}

// Equal reports deep equality, ignoring key order.
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	for _, k := range d.Keys() {
		ov, ok := o.Get(k)
		if !ok || !d.fields[k].Equal(ov) {
			return false
		}
	}
	return true
}

// Map converts the document into a plain map.
func (d *Document) Map() map[string]any {
	out := make(map[string]any, d.Len())
	d.Range(func(k string, v Value) bool {
		out[k] = v.Any()
		return true
	})
	return out
}

// String returns the compact JSON rendering.
func (d *Document) String() string {
	return string(d.appendJSON(nil))
}

// MarshalJSON implements json.Marshaler, preserving field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.appendJSON(nil), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving field order.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	obj, ok := v.AsObject()
	if !ok {
		return fmt.Errorf("document must be a JSON object, got %s", v.Kind())
	}
	*d = *obj
	return nil
}

func (d *Document) appendJSON(buf []byte) []byte {
	buf = append(buf, '{')
	for i, k := range d.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendQuoted(buf, k)
		buf = append(buf, ':')
		buf = d.fields[k].appendJSON(buf)
	}
	return append(buf, '}')
}

// Decode reads one JSON value from dec. The decoder should have UseNumber set.
func Decode(dec *json.Decoder) (Value, error) {
	return decodeValue(dec)
}

// DecodeArray reads a JSON array of objects from r, calling fn for each
// document in order. It stops at the first error.
func DecodeArray(r io.Reader, fn func(*Document) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read array start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected JSON array, got %v", tok)
	}

	for i := 0; dec.More(); i++ {
		v, err := decodeValue(dec)
		if err != nil {
			return fmt.Errorf("decode item %d: %w", i, err)
		}
		obj, ok := v.AsObject()
		if !ok {
			return fmt.Errorf("item %d: expected object, got %s", i, v.Kind())
		}
		if err := fn(obj); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read array end: %w", err)
	}
	return nil
}

var errUnexpectedDelim = errors.New("unexpected delimiter")

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("read token: %w", err)
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", t, err)
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case json.Delim:
		switch t {
		case '{':
			d := New()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("read key: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				d.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("read object end: %w", err)
			}
			return Object(d), nil
		case '[':
			var items []Value
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("read array end: %w", err)
			}
			return Value{kind: KindArray, arr: nonNil(items)}, nil
		}
	}
	return Value{}, fmt.Errorf("%w: %v", errUnexpectedDelim, tok)
}

func nonNil(items []Value) []Value {
	if items == nil {
		return []Value{}
	}
	return items
}
