package record

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind is the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the JSON types. Numbers keep their literal
// text so integers and decimals survive without float rounding.
type Value struct {
	kind Kind
	text string // string contents or number literal
	flag bool
	list []Value
	obj  *Record
}

func StringValue(s string) Value { return Value{kind: KindString, text: s} }

func NumberValue(f float64) Value {
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

func BoolValue(b bool) Value { return Value{kind: KindBool, flag: b} }

func ListValue(items ...Value) Value {
	if items == nil {
		items = make([]Value, 0)
	}
	return Value{kind: KindList, list: items}
}

func ObjectValue(r Record) Value { return Value{kind: KindObject, obj: &r} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.text, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsInt succeeds for integral literals only; 1.5 fails, 2.0 succeeds.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if i, err := strconv.ParseInt(v.text, 10, 64); err == nil {
		return i, true
	}
	d, err := decimal.NewFromString(v.text)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	return d.IntPart(), true
}

func (v Value) AsDecimal() (decimal.Decimal, bool) {
	if v.kind != KindNumber {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v.text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

func (v Value) AsRecord() (Record, bool) {
	if v.kind != KindObject || v.obj == nil {
		return Record{}, false
	}
	return *v.obj, true
}

// Interface returns the value as plain Go data: string, float64, bool,
// []any, map[string]any or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindNumber:
		f, _ := v.AsFloat()
		return f
	case KindBool:
		return v.flag
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		if v.obj == nil {
			return map[string]any{}
		}
		return v.obj.Map()
	default:
		return nil
	}
}

func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.text), nil
	case KindBool:
		return json.Marshal(v.flag)
	case KindList:
		buf := []byte{'['}
		for i, item := range v.list {
			if i > 0 {
				buf = append(buf, ',')
			}
			data, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, data...)
		}
		return append(buf, ']'), nil
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return v.obj.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}
