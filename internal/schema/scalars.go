package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	language "github.com/hanpama/graphexec/internal/language"
)

// Scalar is a leaf type. Its three conversion functions report failure
// through the boolean result and never panic:
//
//	Serialize:    internal value -> response value
//	ParseValue:   variable input -> internal value
//	ParseLiteral: query literal  -> internal value
//
// ParseValue(Serialize(x)) round-trips for every value the scalar can
// represent.
type Scalar struct {
	Name           string
	Description    string
	SpecifiedByURL string
	Serialize      func(value any) (any, bool)
	ParseValue     func(value any) (any, bool)
	ParseLiteral   func(value *language.Value) (any, bool)

	// builtin identifies the constructor of a built-in scalar. Two
	// instances with the same builtin class may share a name.
	builtin string
}

// Initialize fills in identity conversions for custom scalars that omit
// them.
func (t *Scalar) Initialize(s *Schema) error {
	if t.Serialize == nil {
		t.Serialize = func(v any) (any, bool) { return v, true }
	}
	if t.ParseValue == nil {
		t.ParseValue = func(v any) (any, bool) { return v, true }
	}
	if t.ParseLiteral == nil {
		parse := t.ParseValue
		t.ParseLiteral = func(v *language.Value) (any, bool) {
			if v == nil || v.Kind == language.Variable {
				return nil, false
			}
			return parse(LiteralValue(v, nil))
		}
	}
	return nil
}

// IsBuiltin reports whether t was created by one of the built-in scalar
// constructors.
func (t *Scalar) IsBuiltin() bool { return t.builtin != "" }

func (t *Scalar) sameClass(o *Scalar) bool {
	return t.builtin != "" && t.builtin == o.builtin
}

// Shared instances of the built-in scalars. They are never mutated after
// construction.
var (
	Int     = IntScalar()
	Float   = FloatScalar()
	String  = StringScalar()
	Boolean = BooleanScalar()
	ID      = IDScalar()
)

// LiteralValue converts an AST literal into an untyped Go value. Variable
// references are looked up in vars; unknown variables yield nil.
func LiteralValue(v *language.Value, vars map[string]any) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.Variable:
		return vars[v.Raw]
	case language.IntValue:
		if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return narrowInt(i)
		}
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case language.FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case language.StringValue, language.BlockValue, language.EnumValue:
		return v.Raw
	case language.BooleanValue:
		return v.Raw == "true"
	case language.NullValue:
		return nil
	case language.ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = LiteralValue(c.Value, vars)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			m[c.Name] = LiteralValue(c.Value, vars)
		}
		return m
	default:
		return nil
	}
}

func IntScalar() *Scalar {
	return &Scalar{
		Name:        "Int",
		Description: "The `Int` scalar type represents non-fractional signed whole numeric values.",
		Serialize:   coerceInt,
		ParseValue:  coerceInt,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.IntValue {
				return nil, false
			}
			i, err := strconv.ParseInt(v.Raw, 10, 64)
			if err != nil {
				return nil, false
			}
			return narrowInt(i), true
		},
		builtin: "Int",
	}
}

func FloatScalar() *Scalar {
	return &Scalar{
		Name:        "Float",
		Description: "The `Float` scalar type represents signed double-precision fractional values.",
		Serialize:   coerceFloat,
		ParseValue:  coerceFloat,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.IntValue && v.Kind != language.FloatValue {
				return nil, false
			}
			f, err := strconv.ParseFloat(v.Raw, 64)
			if err != nil {
				return nil, false
			}
			return f, true
		},
		builtin: "Float",
	}
}

func StringScalar() *Scalar {
	return &Scalar{
		Name:        "String",
		Description: "The `String` scalar type represents textual data, represented as UTF-8 character sequences.",
		Serialize: func(v any) (any, bool) {
			switch s := v.(type) {
			case string:
				return s, true
			case []byte:
				return string(s), true
			case fmt.Stringer:
				return s.String(), true
			case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
				return fmt.Sprint(s), true
			}
			if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
				return rv.String(), true
			}
			return nil, false
		},
		ParseValue: func(v any) (any, bool) {
			s, ok := v.(string)
			return s, ok
		},
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.StringValue && v.Kind != language.BlockValue {
				return nil, false
			}
			return v.Raw, true
		},
		builtin: "String",
	}
}

func BooleanScalar() *Scalar {
	return &Scalar{
		Name:        "Boolean",
		Description: "The `Boolean` scalar type represents `true` or `false`.",
		Serialize: func(v any) (any, bool) {
			b, ok := v.(bool)
			return b, ok
		},
		ParseValue: func(v any) (any, bool) {
			b, ok := v.(bool)
			return b, ok
		},
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.BooleanValue {
				return nil, false
			}
			return v.Raw == "true", true
		},
		builtin: "Boolean",
	}
}

func IDScalar() *Scalar {
	id := func(v any) (any, bool) {
		switch s := v.(type) {
		case string:
			return s, true
		case fmt.Stringer:
			return s.String(), true
		case json.Number:
			return s.String(), true
		}
		if i, ok := toInt64(v); ok {
			return strconv.FormatInt(i, 10), true
		}
		return nil, false
	}
	return &Scalar{
		Name:        "ID",
		Description: "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching.",
		Serialize:   id,
		ParseValue:  id,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.StringValue && v.Kind != language.IntValue {
				return nil, false
			}
			return v.Raw, true
		},
		builtin: "ID",
	}
}

// coerceInt accepts any whole number. Values inside the 32-bit range come
// back as int; larger ones fall back to int64.
func coerceInt(v any) (any, bool) {
	i, ok := toInt64(v)
	if !ok {
		return nil, false
	}
	return narrowInt(i), true
}

func narrowInt(i int64) any {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return int(i)
	}
	return i
}

func coerceFloat(v any) (any, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, false
		}
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return nil, false
}

// toInt64 converts integer kinds, integral floats and json.Number.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt64(f)
		}
		return 0, false
	case bool, string, nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
