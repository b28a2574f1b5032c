package document

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Kind is the tag of a Value.
type Kind uint8

// Value kinds. The declaration order is the cross-kind sort order
// except for Bool, which sorts last.
const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindObject
	KindArray
	KindBool
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed field value: null, bool, number, string,
// array or nested document. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *Document
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64. Integers are stored as float64 so that
// comparisons treat 1 and 1.0 the same.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an int as a number.
func Int(n int) Value { return Number(float64(n)) }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a list of values. The slice is copied.
func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

// Strings builds an array of string values.
func Strings(items ...string) Value {
	arr := make([]Value, len(items))
	for i, s := range items {
		arr[i] = String(s)
	}
	return Value{kind: KindArray, arr: arr}
}

// Object wraps a nested document. The document is not copied.
func Object(d *Document) Value {
	if d == nil {
		d = New()
	}
	return Value{kind: KindObject, obj: d}
}

// Kind returns the value tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsInt returns the numeric payload when it is integral.
func (v Value) AsInt() (int, bool) {
	if v.kind != KindNumber || v.n != math.Trunc(v.n) || math.IsInf(v.n, 0) {
		return 0, false
	}
	return int(v.n), true
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsArray returns the array items. The returned slice must not be modified.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsObject returns the nested document. The returned document must not be modified.
func (v Value) AsObject() (*Document, bool) { return v.obj, v.kind == KindObject }

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, item := range v.arr {
			arr[i] = item.Clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Equal reports deep equality. Object key order is not significant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(o.obj)
	}
	return false
}

// Compare orders two values. Values of different kinds are ordered by kind
// (null, number, string, object, array, bool).
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmpInt(kindRank(a.kind), kindRank(b.kind))
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	case KindString:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		}
		return 0
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.arr), len(b.arr))
	case KindObject:
		return bytes.Compare(a.appendCanonical(nil), b.appendCanonical(nil))
	}
	return 0
}

func kindRank(k Kind) int { return int(k) }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Render returns the text used by regex and text matching: strings verbatim,
// numbers in shortest form, everything else as compact JSON.
func (v Value) Render() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return formatNumber(v.n)
	default:
		return string(v.appendJSON(nil))
	}
}

// Key returns a canonical string usable as a map key. Equal values
// produce equal keys.
func (v Value) Key() string {
	return string(v.appendCanonical(nil))
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) appendJSON(buf []byte) []byte {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...)
	case KindBool:
		return strconv.AppendBool(buf, v.b)
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return append(buf, "null"...)
		}
		return append(buf, formatNumber(v.n)...)
	case KindString:
		return appendQuoted(buf, v.s)
	case KindArray:
		buf = append(buf, '[')
		for i, item := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = item.appendJSON(buf)
		}
		return append(buf, ']')
	case KindObject:
		return v.obj.appendJSON(buf)
	}
	return buf
}

// appendCanonical is appendJSON with object keys sorted.
func (v Value) appendCanonical(buf []byte) []byte {
	switch v.kind {
	case KindArray:
		buf = append(buf, '[')
		for i, item := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = item.appendCanonical(buf)
		}
		return append(buf, ']')
	case KindObject:
		keys := v.obj.Keys()
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendQuoted(buf, k)
			buf = append(buf, ':')
			buf = v.obj.fields[k].appendCanonical(buf)
		}
		return append(buf, '}')
	default:
		return v.appendJSON(buf)
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FromAny converts plain Go values (as produced by encoding/json or written
// in literals) into a Value. Maps are converted with sorted keys.
// Unsupported types become null.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Document:
		return Object(t)
	case Document:
		return Object(&t)
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null()
		}
		return Number(f)
	case []Value:
		return Array(t...)
	case []string:
		return Strings(t...)
	case []any:
		arr := make([]Value, len(t))
		for i, item := range t {
			arr[i] = FromAny(item)
		}
		return Value{kind: KindArray, arr: arr}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := New()
		for _, k := range keys {
			d.Set(k, FromAny(t[k]))
		}
		return Object(d)
	}
	return Null()
}

// Any converts the value back into plain Go values.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case KindObject:
		return v.obj.Map()
	}
	return nil
}

// appendQuoted writes s as a JSON string without HTML escaping, so the
// rendered text keeps '&', '<' and '>' as written.
func appendQuoted(buf []byte, s string) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return append(buf, bytes.TrimSuffix(b.Bytes(), []byte("\n"))...)
}
