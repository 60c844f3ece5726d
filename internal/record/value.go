// Package record holds the value model shared by the query builder, the
// predicate codec and the store: a closed scalar-or-JSON value union and an
// ordered column/value list.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a single column value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	s    string
	raw  json.RawMessage // compact JSON text of an array or object
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }
func Int(n int64) Value { return Number(json.Number(strconv.FormatInt(n, 10))) }
func Float(f float64) Value { return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64))) }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// JSON wraps an array or object document. The text is compacted so the
// bound parameter is the canonical serialization.
func JSON(doc []byte) (Value, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return Value{}, fmt.Errorf("compacting json value: %w", err)
	}
	return Value{kind: KindJSON, raw: buf.Bytes()}, nil
}

// Text returns the string member.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Truth returns the bool member.
func (v Value) Truth() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Int64 returns the number member when it is integral.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, err := v.num.Int64()
	return n, err == nil
}

// Arg returns the value as a driver bind parameter. JSON documents bind as
// their text, as do integers outside the int64 range so the server parses
// them exactly.
func (v Value) Arg() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		if n, err := v.num.Int64(); err == nil {
			return n
		}
		if !strings.ContainsAny(v.num.String(), ".eE") {
			return v.num.String()
		}
		if f, err := v.num.Float64(); err == nil {
			return f
		}
		return v.num.String()
	case KindString:
		return v.s
	case KindJSON:
		return string(v.raw)
	}
	panic(fmt.Sprintf("record: unhandled kind %v", v.kind))
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindString:
		return json.Marshal(v.s)
	case KindJSON:
		return v.raw, nil
	}
	return nil, fmt.Errorf("record: unhandled kind %v", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("record: empty value")
	}
	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return fmt.Errorf("record: invalid literal %q", data)
		}
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[', '{':
		doc, err := JSON(data)
		if err != nil {
			return err
		}
		*v = doc
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("record: invalid number %q: %w", data, err)
		}
		*v = Number(n)
	}
	return nil
}

// Equal reports whether two values hold the same member and content.
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
		return v.num == o.num
	case KindString:
		return v.s == o.s
	case KindJSON:
		return bytes.Equal(v.raw, o.raw)
	}
	return false
}

// FromGo converts a decoded driver value into the union. Values outside the
// scalar members go through encoding/json and land in whichever member
// their JSON form selects.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Number(json.Number(strconv.FormatUint(t, 10))), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return String(strconv.FormatFloat(t, 'g', -1, 64)), nil
		}
		return Float(t), nil
	case json.Number:
		return Number(t), nil
	}

	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("record: converting %T: %w", x, err)
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, fmt.Errorf("record: converting %T: %w", x, err)
	}
	return v, nil
}
