// ABOUTME: Metadata map over a closed union of string, number and nested map values
// ABOUTME: JSON decoding goes through gjson so unsupported kinds are rejected up front

package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrUnsupportedValue is returned when decoding a JSON array or null into metadata.
var ErrUnsupportedValue = errors.New("unsupported metadata value")

// Kind identifies which member of the value union is populated.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a single metadata value. The zero Value is invalid.
type Value struct {
	kind Kind
	str  string
	num  float64
	m    Metadata
}

// String builds a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number builds a numeric value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Int builds a numeric value from an integer, typically a unix millisecond timestamp.
func Int(n int64) Value {
	return Value{kind: KindNumber, num: float64(n)}
}

// Map builds a nested map value. The map is copied.
func Map(m Metadata) Value {
	return Value{kind: KindMap, m: m.Clone()}
}

// Kind returns the populated member of the union.
func (v Value) Kind() Kind {
	return v.kind
}

// AsString returns the string member.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric member.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsMap returns the nested map member.
func (v Value) AsMap() (Metadata, bool) {
	return v.m, v.kind == KindMap
}

// Text renders the value for logs and plain-text displays.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindMap:
		data, _ := json.Marshal(v.m)
		return string(data)
	default:
		return ""
	}
}

// Equal reports whether two values hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindMap:
		return v.m.Equal(o.m)
	default:
		return true
	}
}

func (v Value) clone() Value {
	if v.kind == KindMap {
		v.m = v.m.Clone()
	}
	return v
}

// MarshalJSON encodes the populated member.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("%w: zero value", ErrUnsupportedValue)
	}
}

// UnmarshalJSON decodes a JSON string, number, boolean or object.
func (v *Value) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid metadata JSON")
	}
	parsed, err := valueFromResult(gjson.ParseBytes(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromResult(r gjson.Result) (Value, error) {
	switch r.Type {
	case gjson.String:
		return String(r.Str), nil
	case gjson.Number:
		return Number(r.Num), nil
	case gjson.True, gjson.False:
		return String(strconv.FormatBool(r.Bool())), nil
	case gjson.JSON:
		if r.IsObject() {
			m, err := metadataFromResult(r)
			if err != nil {
				return Value{}, err
			}
			return Value{kind: KindMap, m: m}, nil
		}
		return Value{}, fmt.Errorf("%w: array", ErrUnsupportedValue)
	default:
		return Value{}, fmt.Errorf("%w: null", ErrUnsupportedValue)
	}
}

func metadataFromResult(r gjson.Result) (Metadata, error) {
	m := Metadata{}
	var err error
	r.ForEach(func(key, val gjson.Result) bool {
		var v Value
		v, err = valueFromResult(val)
		if err != nil {
			err = fmt.Errorf("key %q: %w", key.String(), err)
			return false
		}
		m[key.String()] = v
		return true
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Metadata carries channel extras and session state.
type Metadata map[string]Value

// UnmarshalJSON decodes a JSON object. A JSON null yields an empty map.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid metadata JSON")
	}
	r := gjson.ParseBytes(data)
	if r.Type == gjson.Null {
		*m = Metadata{}
		return nil
	}
	if !r.IsObject() {
		return fmt.Errorf("%w: metadata must be an object", ErrUnsupportedValue)
	}
	parsed, err := metadataFromResult(r)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Clone returns a deep copy. Cloning nil returns nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

// Merge copies every key of patch into m, overwriting existing keys.
func (m Metadata) Merge(patch Metadata) {
	maps.Copy(m, patch.Clone())
}

// Merged returns a new map holding m overlaid with patch.
func (m Metadata) Merged(patch Metadata) Metadata {
	out := m.Clone()
	if out == nil {
		out = make(Metadata, len(patch))
	}
	out.Merge(patch)
	return out
}

// Get returns the string value for key, or "" when absent or not a string.
func (m Metadata) Get(key string) string {
	s, _ := m[key].AsString()
	return s
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both maps hold the same keys and values.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// FromStrings builds metadata from a flat string map, dropping empty values.
func FromStrings(in map[string]string) Metadata {
	out := make(Metadata, len(in))
	for k, v := range in {
		if v == "" {
			continue
		}
		out[k] = String(v)
	}
	return out
}
