package model

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindUnavailable marks a signal whose capability is absent on the device.
	// It is the zero Kind so that the zero Value is Unavailable.
	KindUnavailable Kind = iota
	// KindString is a text scalar.
	KindString
	// KindInt is a signed integer scalar.
	KindInt
	// KindFloat is a floating point scalar.
	KindFloat
	// KindBool is a boolean scalar.
	KindBool
	// KindList is an ordered list of scalars.
	KindList
	// KindMap is a nested mapping from string keys to values.
	KindMap
)

// String returns the lowercase name used in JSON and reports.
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// IsScalar reports whether k is one of the scalar kinds.
func (k Kind) IsScalar() bool {
	return k == KindString || k == KindInt || k == KindFloat || k == KindBool
}

// maxExactInt is the largest integer a float64 represents exactly (2^53).
const maxExactInt = 1 << 53

// ErrUnsupportedShape is returned when a native value cannot be represented
// as a Value. The aggregator treats it as a probe failure.
var ErrUnsupportedShape = errors.New("unsupported signal shape")

// Value is the closed set of shapes a signal may take: a scalar, an ordered
// list of scalars, a nested mapping, or the Unavailable sentinel.
//
// Values are immutable. Construct them with String, Int, Float, Bool, List,
// Map, Unavailable or Normalize; the zero Value is Unavailable.
type Value struct {
	kind   Kind
	str    string
	num    int64
	float  float64
	flag   bool
	items  []Value
	fields map[string]Value
}

// Unavailable returns the sentinel for "probe ran, capability absent".
func Unavailable() Value {
	return Value{}
}

// String returns a text scalar.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int returns an integer scalar.
func Int(n int64) Value {
	return Value{kind: KindInt, num: n}
}

// Float returns a floating point scalar. NaN and infinities are rejected by
// the canonicalizer; use Normalize to get an error up front.
func Float(f float64) Value {
	return Value{kind: KindFloat, float: f}
}

// Bool returns a boolean scalar.
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// List returns an ordered list. Every element must be a scalar.
func List(items ...Value) (Value, error) {
	for i, item := range items {
		if !item.kind.IsScalar() {
			return Value{}, fmt.Errorf("%w: list element %d is %s", ErrUnsupportedShape, i, item.kind)
		}
	}
	return Value{kind: KindList, items: slices.Clone(items)}, nil
}

// Strings returns a list of text scalars.
func Strings(items ...string) Value {
	values := make([]Value, len(items))
	for i, s := range items {
		values[i] = String(s)
	}
	return Value{kind: KindList, items: values}
}

// Map returns a nested mapping. The map is copied.
func Map(fields map[string]Value) Value {
	return Value{kind: KindMap, fields: maps.Clone(fields)}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// IsUnavailable reports whether v is the Unavailable sentinel.
func (v Value) IsUnavailable() bool {
	return v.kind == KindUnavailable
}

// Str returns the text of a string scalar.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// IntValue returns the integer of an int scalar.
func (v Value) IntValue() (int64, bool) {
	return v.num, v.kind == KindInt
}

// FloatValue returns the number of a float scalar.
func (v Value) FloatValue() (float64, bool) {
	return v.float, v.kind == KindFloat
}

// BoolValue returns the flag of a bool scalar.
func (v Value) BoolValue() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// Items returns a copy of the elements of a list.
func (v Value) Items() []Value {
	return slices.Clone(v.items)
}

// Len returns the number of list elements or map fields.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindMap:
		return len(v.fields)
	default:
		return 0
	}
}

// Field returns the value stored under key in a map.
func (v Value) Field(key string) (Value, bool) {
	f, ok := v.fields[key]
	return f, ok
}

// Keys returns the keys of a map in sorted order.
func (v Value) Keys() []string {
	return slices.Sorted(maps.Keys(v.fields))
}

// Equal reports whether v and other hold the same variant and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindUnavailable:
		return true
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.num == other.num
	case KindFloat:
		return v.float == other.float
	case KindBool:
		return v.flag == other.flag
	case KindList:
		return slices.EqualFunc(v.items, other.items, Value.Equal)
	case KindMap:
		return maps.EqualFunc(v.fields, other.fields, Value.Equal)
	default:
		return false
	}
}

// Normalize converts a native Go value into a Value.
//
// nil becomes Unavailable. Strings, booleans, integers and floats become
// scalars; a float holding an exact integer becomes an int so that values
// decoded from JSON match natively typed ones. Slices become lists and must
// hold scalars only. Maps with string keys become nested mappings.
// Anything else yields ErrUnsupportedShape.
func Normalize(in any) (Value, error) {
	return normalize(in, false)
}

func normalize(in any, inList bool) (Value, error) {
	switch x := in.(type) {
	case nil:
		if inList {
			return Value{}, fmt.Errorf("%w: nil list element", ErrUnsupportedShape)
		}
		return Unavailable(), nil
	case Value:
		if inList && !x.kind.IsScalar() {
			return Value{}, fmt.Errorf("%w: nested %s in list", ErrUnsupportedShape, x.kind)
		}
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return normalizeUint(x)
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case []any:
		if inList {
			return Value{}, fmt.Errorf("%w: nested list", ErrUnsupportedShape)
		}
		items := make([]Value, 0, len(x))
		for i, elem := range x {
			item, err := normalize(elem, true)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, item)
		}
		return Value{kind: KindList, items: items}, nil
	case []string:
		if inList {
			return Value{}, fmt.Errorf("%w: nested list", ErrUnsupportedShape)
		}
		return Strings(x...), nil
	case map[string]any:
		if inList {
			return Value{}, fmt.Errorf("%w: map in list", ErrUnsupportedShape)
		}
		fields := make(map[string]Value, len(x))
		for k, elem := range x {
			field, err := normalize(elem, false)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields[k] = field
		}
		return Value{kind: KindMap, fields: fields}, nil
	case map[any]any:
		if inList {
			return Value{}, fmt.Errorf("%w: map in list", ErrUnsupportedShape)
		}
		fields := make(map[string]Value, len(x))
		for k, elem := range x {
			key, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: non-string key %v", ErrUnsupportedShape, k)
			}
			field, err := normalize(elem, false)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", key, err)
			}
			fields[key] = field
		}
		return Value{kind: KindMap, fields: fields}, nil
	case map[string]string:
		if inList {
			return Value{}, fmt.Errorf("%w: map in list", ErrUnsupportedShape)
		}
		fields := make(map[string]Value, len(x))
		for k, s := range x {
			fields[k] = String(s)
		}
		return Value{kind: KindMap, fields: fields}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedShape, reflect.TypeOf(in))
	}
}

func normalizeUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: integer %d overflows int64", ErrUnsupportedShape, u)
	}
	return Int(int64(u)), nil
}

func normalizeFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: non-finite float %v", ErrUnsupportedShape, f)
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
		return Int(int64(f)), nil
	}
	return Float(f), nil
}
