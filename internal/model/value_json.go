package model

import (
	"encoding/json"
	"fmt"
)

// wireValue is the tagged JSON form of a Value. The explicit type keeps
// int 8 and float 8.0 distinct across a round trip.
type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var (
		raw []byte
		err error
	)
	switch v.kind {
	case KindUnavailable:
	case KindString:
		raw, err = json.Marshal(v.str)
	case KindInt:
		raw, err = json.Marshal(v.num)
	case KindFloat:
		raw, err = json.Marshal(v.float)
	case KindBool:
		raw, err = json.Marshal(v.flag)
	case KindList:
		items := v.items
		if items == nil {
			items = []Value{}
		}
		raw, err = json.Marshal(items)
	case KindMap:
		fields := v.fields
		if fields == nil {
			fields = map[string]Value{}
		}
		raw, err = json.Marshal(fields)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedShape, v.kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.kind.String(), Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case "unavailable":
		*v = Unavailable()
	case "string":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return fmt.Errorf("string value: %w", err)
		}
		*v = String(s)
	case "int":
		var n int64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return fmt.Errorf("int value: %w", err)
		}
		*v = Int(n)
	case "float":
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return fmt.Errorf("float value: %w", err)
		}
		*v = Float(f)
	case "bool":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return fmt.Errorf("bool value: %w", err)
		}
		*v = Bool(b)
	case "list":
		var items []Value
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return fmt.Errorf("list value: %w", err)
		}
		list, err := List(items...)
		if err != nil {
			return err
		}
		*v = list
	case "map":
		var fields map[string]Value
		if err := json.Unmarshal(w.Value, &fields); err != nil {
			return fmt.Errorf("map value: %w", err)
		}
		*v = Map(fields)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrUnsupportedShape, w.Type)
	}
	return nil
}
