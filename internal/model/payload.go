package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is one entry of a free-form payload: a string, number, boolean,
// nested mapping, list or null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	m    Payload
	list []Value
}

func NullValue() Value                    { return Value{} }
func StringValue(s string) Value          { return Value{kind: KindString, str: s} }
func NumberValue(n float64) Value         { return Value{kind: KindNumber, num: n} }
func BoolValue(b bool) Value              { return Value{kind: KindBool, b: b} }
func MapValue(p Payload) Value            { return Value{kind: KindMap, m: p} }
func ListValue(items []Value) Value       { return Value{kind: KindList, list: items} }
func (v Value) Kind() ValueKind           { return v.kind }
func (v Value) IsNull() bool              { return v.kind == KindNull }
func (v Value) AsString() (string, bool)  { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsMap() (Payload, bool)    { return v.m, v.kind == KindMap }
func (v Value) AsList() ([]Value, bool)   { return v.list, v.kind == KindList }

// Display renders the value for terminal output.
func (v Value) Display() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindMap, KindList:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindMap:
		return v.m.Equal(o.m)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("payload number %v is not representable in JSON", v.num)
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return v.m.MarshalJSON()
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Payload is an insertion-ordered mapping from string keys to values.
// The zero value is an empty payload ready to use.
type Payload struct {
	keys []string
	vals map[string]Value
}

func (p *Payload) Set(key string, v Value) {
	if p.vals == nil {
		p.vals = make(map[string]Value)
	}
	if _, exists := p.vals[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = v
}

func (p Payload) Get(key string) (Value, bool) {
	v, ok := p.vals[key]
	return v, ok
}

func (p Payload) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p Payload) Len() int { return len(p.keys) }

func (p Payload) Equal(o Payload) bool {
	if len(p.keys) != len(o.keys) {
		return false
	}
	for i, k := range p.keys {
		if o.keys[i] != k {
			return false
		}
		if !p.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

// String renders the payload as "key=value" pairs in insertion order.
func (p Payload) String() string {
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		parts = append(parts, k+"="+p.vals[k].Display())
	}
	return strings.Join(parts, " ")
}

func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := p.vals[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal payload key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if tok == nil {
		*p = Payload{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("payload must be a JSON object")
	}
	out, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*p = out
	return nil
}

func decodeObject(dec *json.Decoder) (Payload, error) {
	var p Payload
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Payload{}, fmt.Errorf("decode payload key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Payload{}, fmt.Errorf("payload key must be a string, got %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Payload{}, fmt.Errorf("decode payload key %q: %w", key, err)
		}
		p.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return Payload{}, fmt.Errorf("decode payload end: %w", err)
	}
	return p, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %s: %w", t, err)
		}
		return NumberValue(f), nil
	case json.Delim:
		switch t {
		case '{':
			p, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return MapValue(p), nil
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
			return ListValue(items), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
