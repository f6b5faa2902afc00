package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	Undefined Kind = iota
	String
	Int
	Long
	Double
	Bool
	List
	Object
	Expression
)

var kindNames = [...]string{"UNDEFINED", "STRING", "INT", "LONG", "DOUBLE", "BOOLEAN", "LIST", "OBJECT", "EXPRESSION"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

var ErrNotConvertible = errors.New("value is not convertible")

// Value is a dynamic tree value used for resource attributes, operation parameters and results.
// Object values keep insertion order. The zero Value is undefined.
type Value struct {
	kind Kind
	str  string
	num  int64
	dbl  float64
	b    bool
	list []Value
	obj  *object
}

type object struct {
	keys []string
	vals map[string]Value
}

func StringValue(s string) Value { return Value{kind: String, str: s} }
func IntValue(i int) Value       { return Value{kind: Int, num: int64(i)} }
func LongValue(i int64) Value    { return Value{kind: Long, num: i} }
func DoubleValue(f float64) Value {
	return Value{kind: Double, dbl: f}
}
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// ExpressionValue wraps an unresolved "${name:default}" expression.
func ExpressionValue(s string) Value { return Value{kind: Expression, str: s} }

// ListValue builds a list from the given elements.
func ListValue(vs ...Value) Value {
	l := make([]Value, len(vs))
	copy(l, vs)
	return Value{kind: List, list: l}
}

// StringList builds a list of string values.
func StringList(ss ...string) Value {
	l := make([]Value, 0, len(ss))
	for _, s := range ss {
		l = append(l, StringValue(s))
	}
	return Value{kind: List, list: l}
}

// NewObject returns an empty object value.
func NewObject() Value {
	return Value{kind: Object, obj: &object{vals: map[string]Value{}}}
}

// Parse turns a raw string into a String or, when it carries "${...}", an Expression.
func Parse(s string) Value {
	if IsExpression(s) {
		return ExpressionValue(s)
	}
	return StringValue(s)
}

// IsExpression reports whether s contains an expression reference.
func IsExpression(s string) bool {
	i := strings.Index(s, "${")
	return i >= 0 && strings.Index(s[i:], "}") > 0
}

func (v Value) Kind() Kind         { return v.kind }
func (v Value) IsDefined() bool    { return v.kind != Undefined }
func (v Value) IsExpression() bool { return v.kind == Expression }

// AsString converts any scalar to its string form.
func (v Value) AsString() string {
	switch v.kind {
	case String, Expression:
		return v.str
	case Int, Long:
		return strconv.FormatInt(v.num, 10)
	case Double:
		return strconv.FormatFloat(v.dbl, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	case Undefined:
		return ""
	default:
		b, _ := v.MarshalJSON()
		return string(b)
	}
}

func (v Value) AsLong() (int64, error) {
	switch v.kind {
	case Int, Long:
		return v.num, nil
	case Double:
		return int64(v.dbl), nil
	case String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.str), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q to long", ErrNotConvertible, v.str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s to long", ErrNotConvertible, v.kind)
	}
}

func (v Value) AsInt() (int, error) {
	n, err := v.AsLong()
	return int(n), err
}

func (v Value) AsDouble() (float64, error) {
	switch v.kind {
	case Double:
		return v.dbl, nil
	case Int, Long:
		return float64(v.num), nil
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q to double", ErrNotConvertible, v.str)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s to double", ErrNotConvertible, v.kind)
	}
}

func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case Bool:
		return v.b, nil
	case String:
		switch strings.ToLower(strings.TrimSpace(v.str)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q to boolean", ErrNotConvertible, v.str)
	case Int, Long:
		return v.num != 0, nil
	default:
		return false, fmt.Errorf("%w: %s to boolean", ErrNotConvertible, v.kind)
	}
}

// AsList returns list elements. A scalar is returned as a single element list.
func (v Value) AsList() []Value {
	switch v.kind {
	case List:
		return v.list
	case Undefined:
		return nil
	case Object:
		out := make([]Value, 0, len(v.obj.keys))
		for _, k := range v.obj.keys {
			out = append(out, v.obj.vals[k])
		}
		return out
	default:
		return []Value{v}
	}
}

// AsStrings returns the list elements in their string form.
func (v Value) AsStrings() []string {
	l := v.AsList()
	out := make([]string, 0, len(l))
	for _, e := range l {
		out = append(out, e.AsString())
	}
	return out
}

// Add appends to a list, converting an undefined value into a list first.
func (v *Value) Add(e Value) {
	if v.kind == Undefined {
		v.kind = List
	}
	v.list = append(v.list, e)
}

// Get returns the value stored under key or an undefined value.
func (v Value) Get(key string) Value {
	if v.kind != Object {
		return Value{}
	}
	return v.obj.vals[key]
}

func (v Value) Has(key string) bool {
	if v.kind != Object {
		return false
	}
	_, ok := v.obj.vals[key]
	return ok
}

// Set stores key, converting an undefined value into an object first.
func (v *Value) Set(key string, val Value) {
	if v.kind == Undefined {
		*v = NewObject()
	}
	if v.kind != Object {
		panic("model: Set on " + v.kind.String())
	}
	if _, ok := v.obj.vals[key]; !ok {
		v.obj.keys = append(v.obj.keys, key)
	}
	v.obj.vals[key] = val
}

func (v *Value) Remove(key string) {
	if v.kind != Object {
		return
	}
	if _, ok := v.obj.vals[key]; !ok {
		return
	}
	delete(v.obj.vals, key)
	for i, k := range v.obj.keys {
		if k == key {
			v.obj.keys = append(v.obj.keys[:i], v.obj.keys[i+1:]...)
			break
		}
	}
}

// Keys returns object keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	out := make([]string, len(v.obj.keys))
	copy(out, v.obj.keys)
	return out
}

func (v Value) Len() int {
	switch v.kind {
	case List:
		return len(v.list)
	case Object:
		return len(v.obj.keys)
	default:
		return 0
	}
}

// Clone deep copies lists and objects.
func (v Value) Clone() Value {
	switch v.kind {
	case List:
		l := make([]Value, len(v.list))
		for i, e := range v.list {
			l[i] = e.Clone()
		}
		return Value{kind: List, list: l}
	case Object:
		o := NewObject()
		for _, k := range v.obj.keys {
			o.Set(k, v.obj.vals[k].Clone())
		}
		return o
	default:
		return v
	}
}

// Equal compares by kind and content. Object key order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Undefined:
		return true
	case String, Expression:
		return v.str == o.str
	case Int, Long:
		return v.num == o.num
	case Double:
		return v.dbl == o.dbl
	case Bool:
		return v.b == o.b
	case List:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj.keys) != len(o.obj.keys) {
			return false
		}
		for k, e := range v.obj.vals {
			oe, ok := o.obj.vals[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	if v.kind == Undefined {
		return "undefined"
	}
	return v.AsString()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Undefined:
		return []byte("null"), nil
	case String, Expression:
		return json.Marshal(v.str)
	case Int, Long:
		return []byte(strconv.FormatInt(v.num, 10)), nil
	case Double:
		return json.Marshal(v.dbl)
	case Bool:
		return json.Marshal(v.b)
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			b, err := v.obj.vals[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("marshal value of kind %s", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case string:
		return Parse(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return LongValue(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(f), nil
	case json.Delim:
		switch t {
		case '[':
			l := ListValue()
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				l.Add(e)
			}
			_, err := dec.Token()
			return l, err
		case '{':
			o := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				e, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				o.Set(kt.(string), e)
			}
			_, err := dec.Token()
			return o, err
		}
	}
	return Value{}, fmt.Errorf("unexpected json token %v", tok)
}
