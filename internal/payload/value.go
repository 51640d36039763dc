package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the JSON type of a Value. The zero Kind is Missing, so lookups on
// absent keys chain without nil checks.
type Kind int

const (
	Missing Kind = iota
	Null
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "missing"
	}
}

// Value is an immutable JSON tree node. Every node keeps the exact bytes it
// was decoded from so audit columns store what Instagram actually sent.
type Value struct {
	kind Kind
	b    bool
	s    string // string contents, or the literal text of a number
	arr  []Value
	obj  map[string]Value
	raw  json.RawMessage
}

// Decode parses data into a Value tree.
func Decode(data []byte) (Value, error) {
	if !json.Valid(data) {
		return Value{}, fmt.Errorf("invalid JSON")
	}
	return decodeRaw(data)
}

// MustDecode is Decode for literals in tests and fixtures.
func MustDecode(data string) Value {
	v, err := Decode([]byte(data))
	if err != nil {
		panic(err)
	}
	return v
}

func decodeRaw(raw []byte) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, fmt.Errorf("empty JSON value")
	}

	v := Value{raw: append(json.RawMessage(nil), trimmed...)}

	switch trimmed[0] {
	case '{':
		var members map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &members); err != nil {
			return Value{}, err
		}
		v.kind = Object
		v.obj = make(map[string]Value, len(members))
		for key, member := range members {
			child, err := decodeRaw(member)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			v.obj[key] = child
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Value{}, err
		}
		v.kind = Array
		v.arr = make([]Value, 0, len(items))
		for i, item := range items {
			child, err := decodeRaw(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			v.arr = append(v.arr, child)
		}
	case '"':
		if err := json.Unmarshal(trimmed, &v.s); err != nil {
			return Value{}, err
		}
		v.kind = String
	case 't', 'f':
		if err := json.Unmarshal(trimmed, &v.b); err != nil {
			return Value{}, err
		}
		v.kind = Bool
	case 'n':
		v.kind = Null
	default:
		v.kind = Number
		v.s = string(trimmed)
	}

	return v, nil
}

func (v Value) Kind() Kind { return v.kind }

// Exists reports whether the key or element was present, even as null.
func (v Value) Exists() bool { return v.kind != Missing }

// Get returns the member named key, or a Missing value.
func (v Value) Get(key string) Value {
	if v.kind != Object {
		return Value{}
	}
	return v.obj[key]
}

// Path walks nested object members.
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, key := range keys {
		cur = cur.Get(key)
	}
	return cur
}

// Items returns array elements; any other kind yields nil.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Keys returns object member names in sorted order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for key := range v.obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Str returns the contents of a JSON string.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Text renders scalar ids and text: strings as-is and numbers as their JSON
// literal. Instagram mostly sends ids as strings but not everywhere.
func (v Value) Text() string {
	switch v.kind {
	case String, Number:
		return v.s
	default:
		return ""
	}
}

// Truthy interprets boolean-ish flags: true, non-zero numbers and the
// strings "1"/"true".
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		// overflow parses to ±Inf, which still counts as set
		f, _ := strconv.ParseFloat(v.s, 64)
		return f != 0
	case String:
		switch strings.ToLower(strings.TrimSpace(v.s)) {
		case "1", "true", "yes":
			return true
		}
	}
	return false
}

// Raw returns the exact JSON text of the node, or nil when Missing.
func (v Value) Raw() json.RawMessage {
	return v.raw
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == Missing {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func (v Value) String() string {
	if v.kind == Missing {
		return "<missing>"
	}
	return string(v.raw)
}

// firstText returns the first candidate with non-empty Text.
func firstText(candidates ...Value) string {
	for _, c := range candidates {
		if s := c.Text(); s != "" {
			return s
		}
	}
	return ""
}
