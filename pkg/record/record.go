// Package record holds schema-less payloads from the sentiment service as an
// ordered set of typed fields.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// ErrNotObject is returned when a payload is valid JSON but not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Record is an ordered mapping from field name to Value. The zero value is an
// empty record ready to use.
type Record struct {
	keys   []string
	fields map[string]Value
}

// Parse decodes a JSON object, keeping the order in which fields appear.
// Duplicate keys keep their first position and their last value.
func Parse(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Record{}, fmt.Errorf("error decoding payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Record{}, ErrNotObject
	}

	r, err := decodeFields(dec)
	if err != nil {
		return Record{}, err
	}

	if _, err := dec.Token(); err != io.EOF {
		return Record{}, fmt.Errorf("error decoding payload: unexpected data after object")
	}
	return r, nil
}

// FromMap builds a record from plain Go values. Keys are inserted in the
// order they are listed; map iteration order applies otherwise.
func FromMap(m map[string]any) (Record, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Record{}, fmt.Errorf("error encoding map: %w", err)
	}
	return Parse(data)
}

func decodeFields(dec *json.Decoder) (Record, error) {
	var r Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, fmt.Errorf("error decoding field name: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("error decoding field name: unexpected token %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Record{}, fmt.Errorf("error decoding field %q: %w", key, err)
		}
		r.Set(key, v)
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return Record{}, fmt.Errorf("error decoding object end: %w", err)
	}
	return r, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			r, err := decodeFields(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{kind: KindObject, obj: &r}, nil
		case '[':
			items := make([]Value, 0)
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindList, list: items}, nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return Value{kind: KindString, text: t}, nil
	case json.Number:
		return Value{kind: KindNumber, text: t.String()}, nil
	case bool:
		return Value{kind: KindBool, flag: t}, nil
	case nil:
		return Value{kind: KindNull}, nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// Set stores v under key. A new key is appended after the existing ones.
func (r *Record) Set(key string, v Value) {
	if r.fields == nil {
		r.fields = make(map[string]Value)
	}
	if _, exists := r.fields[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = v
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// Keys returns the field names in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Has reports whether the record contains key.
func (r Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Get returns the raw value stored under key.
func (r Record) Get(key string) (Value, bool) {
	v, ok := r.fields[key]
	return v, ok
}

func (r Record) String(key string) (string, bool) {
	v, ok := r.fields[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

func (r Record) Float(key string) (float64, bool) {
	v, ok := r.fields[key]
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

func (r Record) Int(key string) (int64, bool) {
	v, ok := r.fields[key]
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

func (r Record) Bool(key string) (bool, bool) {
	v, ok := r.fields[key]
	if !ok {
		return false, false
	}
	return v.AsBool()
}

func (r Record) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := r.fields[key]
	if !ok {
		return decimal.Zero, false
	}
	return v.AsDecimal()
}

// Strings returns the field as a string slice. It fails if any element is
// not a string.
func (r Record) Strings(key string) ([]string, bool) {
	v, ok := r.fields[key]
	if !ok || v.kind != KindList {
		return nil, false
	}
	out := make([]string, 0, len(v.list))
	for _, item := range v.list {
		s, ok := item.AsString()
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Record returns a nested object field.
func (r Record) Record(key string) (Record, bool) {
	v, ok := r.fields[key]
	if !ok {
		return Record{}, false
	}
	return v.AsRecord()
}

// Without returns a copy of the record minus the given keys.
func (r Record) Without(keys ...string) Record {
	skip := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		skip[k] = struct{}{}
	}
	var out Record
	for _, k := range r.keys {
		if _, drop := skip[k]; drop {
			continue
		}
		out.Set(k, r.fields[k])
	}
	return out
}

// Merge returns a copy of r with the fields of other applied on top.
func (r Record) Merge(other Record) Record {
	var out Record
	for _, k := range r.keys {
		out.Set(k, r.fields[k])
	}
	for _, k := range other.keys {
		out.Set(k, other.fields[k])
	}
	return out
}

// Map converts the record to plain Go values. Numbers become float64.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.fields[k].Interface()
	}
	return m
}

// MarshalJSON encodes the record with its original field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := r.fields[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
