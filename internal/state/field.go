package state

import (
	"fmt"
	"math"

	"github.com/cosmicds/cosmicds/internal/value"
)

// Kind is the declared type of a container field.
type Kind int

const (
	// Bool fields hold a Go bool.
	Bool Kind = iota + 1
	// Int fields hold a Go int.
	Int
	// Float fields hold a Go float64.
	Float
	// String fields hold a Go string.
	String
	// StringList fields hold a []string.
	StringList
	// Object fields hold plain data as map[string]any (or nil).
	Object
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case StringList:
		return "string list"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field declares one entry of a container's field table.
type Field struct {
	Name    string
	Kind    Kind
	Default any
}

// coerce converts v to the canonical Go type for kind k.
func coerce(k Kind, v any) (any, error) {
	switch k {
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Int:
		switch n := v.(type) {
		case int:
			return n, nil
		case int8, int16, int32, int64, uint8, uint16, uint32:
			conv, _ := value.FromGo(n)
			return int(conv.(value.Int)), nil
		case float64:
			if n == math.Trunc(n) {
				return int(n), nil
			}
		}
	case Float:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case StringList:
		switch l := v.(type) {
		case nil:
			return []string{}, nil
		case []string:
			out := make([]string, len(l))
			copy(out, l)
			return out, nil
		case []any:
			out := make([]string, len(l))
			for i, elem := range l {
				s, ok := elem.(string)
				if !ok {
					return nil, fmt.Errorf("element %d is %T, want string", i, elem)
				}
				out[i] = s
			}
			return out, nil
		}
	case Object:
		if v == nil {
			return nil, nil
		}
		if _, ok := v.(map[string]any); ok {
			return value.Normalize(v)
		}
	}
	return nil, fmt.Errorf("cannot assign %T to %s field", v, k)
}

// fromValue converts a decoded snapshot entry back into the Go type for k.
func fromValue(k Kind, v value.Value) (any, error) {
	switch val := v.(type) {
	case value.Int:
		if k == Int {
			return int(val), nil
		}
		if k == Float {
			return float64(val), nil
		}
	case value.Float:
		if k == Float {
			return float64(val), nil
		}
	case value.Null:
		switch k {
		case Object:
			return nil, nil
		case StringList:
			return []string{}, nil
		}
	}
	return coerce(k, value.ToGo(v))
}
