package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when a document expected to be a flat
// column/value object is something else.
var ErrNotObject = errors.New("record: expected a JSON object")

// Field is one column/value pair.
type Field struct {
	Name  string
	Value Value
}

// Fields is an ordered column/value list. It serves as predicate, row
// payload and result row; order follows the source document or the result
// set columns.
type Fields []Field

// Names returns the column names in order.
func (f Fields) Names() []string {
	names := make([]string, len(f))
	for i, field := range f {
		names[i] = field.Name
	}
	return names
}

// Values returns the values in order.
func (f Fields) Values() []Value {
	values := make([]Value, len(f))
	for i, field := range f {
		values[i] = field.Value
	}
	return values
}

// Get returns the value stored under name.
func (f Fields) Get(name string) (Value, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value under name, or appends it.
func (f *Fields) Set(name string, v Value) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Value = v
			return
		}
	}
	*f = append(*f, Field{Name: name, Value: v})
}

// SameKeys reports whether o holds exactly the columns of f, in any order.
func (f Fields) SameKeys(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for _, field := range f {
		if _, ok := o.Get(field.Name); !ok {
			return false
		}
	}
	return true
}

// Equal reports whether both lists hold the same columns, in the same order,
// with equal values.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for i := range f {
		if f[i].Name != o[i].Name || !f[i].Value.Equal(o[i].Value) {
			return false
		}
	}
	return true
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := field.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshaling %q: %w", field.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. A repeated key
// keeps its first position and its last value.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}

	out := Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record: decoding %q: %w", name, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("record: decoding %q: %w", name, err)
		}
		out.Set(name, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("record: trailing data after object")
	}
	*f = out
	return nil
}

// ParseRows decodes either a single object or an array of objects. Elements
// that are not objects fail with ErrNotObject.
func ParseRows(data []byte) ([]Fields, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	switch data[0] {
	case '{':
		var row Fields
		if err := row.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return []Fields{row}, nil
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
		rows := make([]Fields, 0, len(raws))
		for i, raw := range raws {
			var row Fields
			if err := row.UnmarshalJSON(raw); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			rows = append(rows, row)
		}
		return rows, nil
	default:
		return nil, ErrNotObject
	}
}
