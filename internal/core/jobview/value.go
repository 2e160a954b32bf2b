package jobview

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// maxParseDepth bounds object nesting accepted from untrusted metrics.
const maxParseDepth = 512

var (
	ErrParse       = errors.New("parse error")
	ErrEmptyConfig = errors.New("empty configuration")
)

// ParseError reports input that could not be decoded. It matches ErrParse.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
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
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is a decoded JSON value. Scalars keep their text, arrays keep their
// compact JSON encoding and objects keep their keys in document order.
type Value struct {
	Kind   Kind
	Text   string
	Object *Object
}

func (v Value) IsScalar() bool {
	return v.Kind != KindArray && v.Kind != KindObject
}

// String renders the value for display: scalars as-is, arrays and objects as
// compact JSON.
func (v Value) String() string {
	if v.Kind == KindObject {
		b, _ := v.Object.MarshalJSON()
		return string(b)
	}
	return v.Text
}

// Int returns the value as an integer when it is a whole number or a string
// holding one.
func (v Value) Int() (int64, bool) {
	switch v.Kind {
	case KindNumber, KindString:
		s := strings.TrimSpace(v.Text)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// Float returns the value as a float when it is numeric or a numeric string.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber, KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		return f, err == nil
	}
	return 0, false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Text)
	case KindObject:
		return v.Object.MarshalJSON()
	case KindNull:
		return []byte("null"), nil
	}
	return []byte(v.Text), nil
}

type Field struct {
	Key   string
	Value Value
}

// Object is a JSON object that remembers key insertion order.
type Object struct {
	fields []Field
	index  map[string]int
}

func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

// Set adds or replaces a key. Replacing keeps the original position.
func (o *Object) Set(key string, v Value) {
	if i, ok := o.index[key]; ok {
		o.fields[i].Value = v
		return
	}
	o.index[key] = len(o.fields)
	o.fields = append(o.fields, Field{Key: key, Value: v})
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	i, ok := o.index[key]
	if !ok {
		return Value{}, false
	}
	return o.fields[i].Value, true
}

// Lookup returns a pointer to the value of key, or nil when absent.
func (o *Object) Lookup(key string) *Value {
	v, ok := o.Get(key)
	if !ok {
		return nil
	}
	return &v
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

// Fields returns the fields in insertion order.
func (o *Object) Fields() []Field {
	if o == nil {
		return nil
	}
	out := make([]Field, len(o.fields))
	copy(out, o.fields)
	return out
}

func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.Key
	}
	return keys
}

func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decode parses a complete JSON document into a Value.
func decode(data []byte) (Value, error) {
	if !json.Valid(data) {
		return Value{}, &ParseError{Err: errors.New("invalid JSON")}
	}
	raw, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return Value{}, &ParseError{Err: err}
	}
	v, err := decodeValue(raw, dataType, 0)
	if err != nil {
		return Value{}, &ParseError{Err: err}
	}
	return v, nil
}

func decodeValue(raw []byte, dataType jsonparser.ValueType, depth int) (Value, error) {
	switch dataType {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Text: s}, nil
	case jsonparser.Number:
		return Value{Kind: KindNumber, Text: string(raw)}, nil
	case jsonparser.Boolean:
		return Value{Kind: KindBool, Text: string(raw)}, nil
	case jsonparser.Null:
		return Value{Kind: KindNull, Text: "null"}, nil
	case jsonparser.Array:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindArray, Text: buf.String()}, nil
	case jsonparser.Object:
		if depth >= maxParseDepth {
			return Value{}, fmt.Errorf("object nesting exceeds %d levels", maxParseDepth)
		}
		obj := NewObject()
		err := jsonparser.ObjectEach(raw, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
			// keys arrive already unescaped
			v, err := decodeValue(value, dt, depth+1)
			if err != nil {
				return err
			}
			obj.Set(string(key), v)
			return nil
		})
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindObject, Object: obj}, nil
	}
	return Value{}, fmt.Errorf("unsupported JSON value type %s", dataType)
}
