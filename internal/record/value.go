// Package record models extracted and reference records. Values keep the
// loose typing of their sources (numbers as strings, JSON inside strings)
// behind a tagged union with explicit, fallible conversions.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotNumber   = errors.New("value is not a number")
	ErrNotDate     = errors.New("value is not a date")
	ErrNotList     = errors.New("value is not a list")
	ErrInvalidJSON = errors.New("value is not valid JSON")
)

// DateLayout is the layout dates are rendered with and parsed from by default.
const DateLayout = "2006-01-02"

type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
	KindDate
	KindList
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is immutable; constructors copy their inputs.
type Value struct {
	kind   Kind
	text   string
	num    decimal.Decimal
	flag   bool
	date   time.Time
	items  []Value
	fields map[string]Value
}

func Null() Value { return Value{} }
func Text(s string) Value { return Value{kind: KindText, text: s} }
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }
func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

func List(items ...Value) Value {
	return Value{kind: KindList, items: append([]Value(nil), items...)}
}

func Mapping(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindMapping, fields: cp}
}

// FromAny converts a decoded JSON value (or a plain Go value) into a Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return Text(t)
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return Text(t.String())
		}
		return Number(d)
	case float64:
		return Number(decimal.NewFromFloat(t))
	case float32:
		return Number(decimal.NewFromFloat32(t))
	case int:
		return Number(decimal.NewFromInt(int64(t)))
	case int64:
		return Number(decimal.NewFromInt(t))
	case decimal.Decimal:
		return Number(t)
	case bool:
		return Bool(t)
	case time.Time:
		return Date(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Value{kind: KindList, items: items}
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Text(item)
		}
		return Value{kind: KindList, items: items}
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Value{kind: KindMapping, fields: fields}
	case map[string]string:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = Text(item)
		}
		return Value{kind: KindMapping, fields: fields}
	default:
		return Text(fmt.Sprint(t))
	}
}

func (v Value) Kind() Kind { return v.kind }

// String renders the value the way it is compared against reference data.
// Lists and mappings render as JSON with sorted keys.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num.String()
	case KindBool:
		if v.flag {
			return "true"
		}
		return "false"
	case KindDate:
		return v.date.Format(DateLayout)
	case KindList, KindMapping:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// Equal reports whether both values have the same kind and rendering. Text
// "1" and the number 1 are different values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindNumber {
		return v.num.Equal(o.num)
	}
	return v.String() == o.String()
}

// IsEmpty reports whether the value carries nothing: null, blank text, or an
// empty list or mapping.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindText:
		return strings.TrimSpace(v.text) == ""
	case KindList:
		return len(v.items) == 0
	case KindMapping:
		return len(v.fields) == 0
	default:
		return false
	}
}

// Decimal converts numbers and numeric text.
func (v Value) Decimal() (decimal.Decimal, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindText:
		d, err := decimal.NewFromString(strings.TrimSpace(v.text))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumber, v.text)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s value", ErrNotNumber, v.kind)
	}
}

// Time converts dates and date text in the given layout.
func (v Value) Time(layout string) (time.Time, error) {
	switch v.kind {
	case KindDate:
		return v.date, nil
	case KindText:
		t, err := time.Parse(layout, strings.TrimSpace(v.text))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrNotDate, v.text)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s value", ErrNotDate, v.kind)
	}
}

// Decode parses text as JSON and returns the resulting value. Non-text values
// are returned unchanged.
func (v Value) Decode() (Value, error) {
	if v.kind != KindText {
		return v, nil
	}
	dec := json.NewDecoder(strings.NewReader(v.text))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return FromAny(raw), nil
}

// Items returns the elements of a list value.
func (v Value) Items() ([]Value, error) {
	if v.kind != KindList {
		return nil, fmt.Errorf("%w: %s value", ErrNotList, v.kind)
	}
	return append([]Value(nil), v.items...), nil
}

// Fields returns a copy of a mapping's fields, or nil for other kinds.
func (v Value) Fields() map[string]Value {
	if v.kind != KindMapping {
		return nil
	}
	cp := make(map[string]Value, len(v.fields))
	for k, f := range v.fields {
		cp[k] = f
	}
	return cp
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.flag)
	case KindDate:
		return json.Marshal(v.date.Format(DateLayout))
	case KindList:
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	case KindMapping:
		names := make([]string, 0, len(v.fields))
		for k := range v.fields {
			names = append(names, k)
		}
		sort.Strings(names)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.fields[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
