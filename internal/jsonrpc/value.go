package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
)

// Value is a raw JSON value returned as a call result. Its shape depends on
// the remote method, so it is kept undecoded until the caller asks for it.
type Value json.RawMessage

var Null = Value("null")

func (v Value) raw() []byte {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 {
		return []byte("null")
	}
	return trimmed
}

func (v Value) IsNull() bool {
	return string(v.raw()) == "null"
}

// Truthy reports whether the value would pass a truth test on the server
// side: null, false, 0, "", [] and {} are falsy.
func (v Value) Truthy() bool {
	data, typ, _, err := jsonparser.Get(v.raw())
	if err != nil {
		return false
	}
	return truthy(data, typ)
}

func (v Value) Decode(dst any) error {
	return json.Unmarshal(v.raw(), dst)
}

// Int64 decodes an integer result such as a user id.
func (v Value) Int64() (int64, error) {
	var n json.Number
	if err := v.Decode(&n); err != nil {
		return 0, fmt.Errorf("decode integer result: %w", err)
	}
	return n.Int64()
}

// Interface decodes the value into plain Go values. Integral numbers become
// int64, other numbers float64.
func (v Value) Interface() (any, error) {
	dec := json.NewDecoder(bytes.NewReader(v.raw()))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalizeNumbers(out), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return v.raw(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	*v = append((*v)[0:0], data...)
	return nil
}

func (v Value) String() string {
	return string(v.raw())
}

func normalizeNumbers(v any) any {
	switch typed := v.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case []any:
		for i := range typed {
			typed[i] = normalizeNumbers(typed[i])
		}
		return typed
	case map[string]any:
		for k, val := range typed {
			typed[k] = normalizeNumbers(val)
		}
		return typed
	default:
		return v
	}
}

func truthy(data []byte, typ jsonparser.ValueType) bool {
	switch typ {
	case jsonparser.Boolean:
		return string(data) == "true"
	case jsonparser.Number:
		f, err := strconv.ParseFloat(string(data), 64)
		return err == nil && f != 0
	case jsonparser.String:
		return len(data) > 0
	case jsonparser.Array, jsonparser.Object:
		if len(data) < 2 {
			return false
		}
		return len(bytes.TrimSpace(data[1:len(data)-1])) > 0
	default:
		return false
	}
}

// rawValue rebuilds the JSON text of a value returned by jsonparser, which
// strips the quotes from strings.
func rawValue(data []byte, typ jsonparser.ValueType) Value {
	switch typ {
	case jsonparser.NotExist, jsonparser.Null:
		return Null
	case jsonparser.String:
		out := make([]byte, 0, len(data)+2)
		out = append(out, '"')
		out = append(out, data...)
		return Value(append(out, '"'))
	default:
		return Value(append([]byte(nil), data...))
	}
}
