package schema

import (
	"encoding/json"
	"math"
	"math/big"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	language "github.com/hanpama/graphexec/internal/language"
)

// boundedIntScalar builds a whole-number scalar restricted to [min, max].
// conv turns a checked int64 into the scalar's Go representation.
func boundedIntScalar(name, desc string, min, max int64, conv func(int64) any) *Scalar {
	parse := func(v any) (any, bool) {
		i, ok := toInt64(v)
		if !ok || i < min || i > max {
			return nil, false
		}
		return conv(i), true
	}
	return &Scalar{
		Name:        name,
		Description: desc,
		Serialize:   parse,
		ParseValue:  parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.IntValue {
				return nil, false
			}
			i, err := strconv.ParseInt(v.Raw, 10, 64)
			if err != nil || i < min || i > max {
				return nil, false
			}
			return conv(i), true
		},
		builtin: name,
	}
}

func LongScalar() *Scalar {
	return boundedIntScalar("Long", "64-bit signed integer.", math.MinInt64, math.MaxInt64,
		func(i int64) any { return i })
}

func ShortScalar() *Scalar {
	return boundedIntScalar("Short", "16-bit signed integer.", math.MinInt16, math.MaxInt16,
		func(i int64) any { return int16(i) })
}

func UShortScalar() *Scalar {
	return boundedIntScalar("UShort", "16-bit unsigned integer.", 0, math.MaxUint16,
		func(i int64) any { return uint16(i) })
}

func UIntScalar() *Scalar {
	return boundedIntScalar("UInt", "32-bit unsigned integer.", 0, math.MaxUint32,
		func(i int64) any { return uint32(i) })
}

func ByteScalar() *Scalar {
	return boundedIntScalar("Byte", "8-bit unsigned integer.", 0, math.MaxUint8,
		func(i int64) any { return uint8(i) })
}

func SByteScalar() *Scalar {
	return boundedIntScalar("SByte", "8-bit signed integer.", math.MinInt8, math.MaxInt8,
		func(i int64) any { return int8(i) })
}

// ULongScalar covers the full uint64 range, so it does not go through
// toInt64.
func ULongScalar() *Scalar {
	parse := func(v any) (any, bool) {
		switch n := v.(type) {
		case uint64:
			return n, true
		case uint:
			return uint64(n), true
		case json.Number:
			u, err := strconv.ParseUint(n.String(), 10, 64)
			return u, err == nil
		case float64:
			if n < 0 || n != math.Trunc(n) || n >= math.MaxUint64 {
				return nil, false
			}
			return uint64(n), true
		}
		i, ok := toInt64(v)
		if !ok || i < 0 {
			return nil, false
		}
		return uint64(i), true
	}
	return &Scalar{
		Name:        "ULong",
		Description: "64-bit unsigned integer.",
		Serialize:   parse,
		ParseValue:  parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.IntValue {
				return nil, false
			}
			u, err := strconv.ParseUint(v.Raw, 10, 64)
			return u, err == nil
		},
		builtin: "ULong",
	}
}

// BigIntScalar represents arbitrary precision integers. Responses carry the
// digits as a JSON number.
func BigIntScalar() *Scalar {
	parse := func(v any) (any, bool) {
		switch n := v.(type) {
		case *big.Int:
			if n == nil {
				return nil, false
			}
			return new(big.Int).Set(n), true
		case big.Int:
			return new(big.Int).Set(&n), true
		case json.Number:
			b, ok := new(big.Int).SetString(n.String(), 10)
			return b, ok
		case string:
			b, ok := new(big.Int).SetString(n, 10)
			return b, ok
		}
		if i, ok := toInt64(v); ok {
			return big.NewInt(i), true
		}
		return nil, false
	}
	return &Scalar{
		Name:        "BigInt",
		Description: "Arbitrary precision signed integer.",
		Serialize: func(v any) (any, bool) {
			b, ok := parse(v)
			if !ok {
				return nil, false
			}
			return json.Number(b.(*big.Int).String()), true
		},
		ParseValue: parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.IntValue {
				return nil, false
			}
			return new(big.Int).SetString(v.Raw, 10)
		},
		builtin: "BigInt",
	}
}

func DecimalScalar() *Scalar {
	parse := func(v any) (any, bool) {
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			return f, err == nil
		}
		return coerceFloat(v)
	}
	return &Scalar{
		Name:        "Decimal",
		Description: "Decimal number. Accepts numeric or string input.",
		Serialize:   coerceFloat,
		ParseValue:  parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			switch v.Kind {
			case language.IntValue, language.FloatValue, language.StringValue:
				f, err := strconv.ParseFloat(v.Raw, 64)
				return f, err == nil
			}
			return nil, false
		},
		builtin: "Decimal",
	}
}

// timeScalar serializes time.Time with layout. When utc is set values are
// normalized to UTC before formatting.
func timeScalar(name, desc, layout string, utc bool) *Scalar {
	parse := func(v any) (any, bool) {
		switch t := v.(type) {
		case time.Time:
			return t, true
		case *time.Time:
			if t == nil {
				return nil, false
			}
			return *t, true
		case string:
			parsed, err := time.Parse(layout, t)
			if err != nil {
				return nil, false
			}
			return parsed, true
		}
		return nil, false
	}
	return &Scalar{
		Name:        name,
		Description: desc,
		Serialize: func(v any) (any, bool) {
			t, ok := parse(v)
			if !ok {
				return nil, false
			}
			tt := t.(time.Time)
			if utc {
				tt = tt.UTC()
			}
			return tt.Format(layout), true
		},
		ParseValue: parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.StringValue {
				return nil, false
			}
			return parse(v.Raw)
		},
		builtin: name,
	}
}

func DateScalar() *Scalar {
	return timeScalar("Date", "Calendar date in ISO-8601 format (yyyy-MM-dd).", time.DateOnly, true)
}

func DateTimeScalar() *Scalar {
	return timeScalar("DateTime", "Date and time in RFC 3339 format, normalized to UTC.", time.RFC3339Nano, true)
}

func DateTimeOffsetScalar() *Scalar {
	return timeScalar("DateTimeOffset", "Date and time in RFC 3339 format, keeping its offset.", time.RFC3339Nano, false)
}

// durationScalar represents time.Duration as a whole number of unit.
func durationScalar(name, desc string, unit time.Duration) *Scalar {
	parse := func(v any) (any, bool) {
		if d, ok := v.(time.Duration); ok {
			return d, true
		}
		i, ok := toInt64(v)
		if !ok {
			return nil, false
		}
		return time.Duration(i) * unit, true
	}
	return &Scalar{
		Name:        name,
		Description: desc,
		Serialize: func(v any) (any, bool) {
			d, ok := v.(time.Duration)
			if !ok {
				return nil, false
			}
			return int64(d / unit), true
		},
		ParseValue: parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.IntValue {
				return nil, false
			}
			i, err := strconv.ParseInt(v.Raw, 10, 64)
			if err != nil {
				return nil, false
			}
			return time.Duration(i) * unit, true
		},
		builtin: name,
	}
}

func SecondsScalar() *Scalar {
	return durationScalar("Seconds", "Duration expressed in whole seconds.", time.Second)
}

func MillisecondsScalar() *Scalar {
	return durationScalar("Milliseconds", "Duration expressed in whole milliseconds.", time.Millisecond)
}

func GuidScalar() *Scalar {
	parse := func(v any) (any, bool) {
		switch g := v.(type) {
		case uuid.UUID:
			return g, true
		case string:
			u, err := uuid.Parse(g)
			return u, err == nil
		}
		return nil, false
	}
	return &Scalar{
		Name:        "Guid",
		Description: "Globally unique identifier in canonical textual form.",
		Serialize: func(v any) (any, bool) {
			g, ok := parse(v)
			if !ok {
				return nil, false
			}
			return g.(uuid.UUID).String(), true
		},
		ParseValue: parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.StringValue {
				return nil, false
			}
			return parse(v.Raw)
		},
		builtin: "Guid",
	}
}

// UriScalar accepts absolute URIs only.
func UriScalar() *Scalar {
	parse := func(v any) (any, bool) {
		switch u := v.(type) {
		case *url.URL:
			if u == nil || !u.IsAbs() {
				return nil, false
			}
			return u, true
		case url.URL:
			if !u.IsAbs() {
				return nil, false
			}
			return &u, true
		case string:
			parsed, err := url.Parse(u)
			if err != nil || !parsed.IsAbs() {
				return nil, false
			}
			return parsed, true
		}
		return nil, false
	}
	return &Scalar{
		Name:        "Uri",
		Description: "Absolute URI.",
		Serialize: func(v any) (any, bool) {
			u, ok := parse(v)
			if !ok {
				return nil, false
			}
			return u.(*url.URL).String(), true
		},
		ParseValue: parse,
		ParseLiteral: func(v *language.Value) (any, bool) {
			if v.Kind != language.StringValue {
				return nil, false
			}
			return parse(v.Raw)
		},
		builtin: "Uri",
	}
}

// BuiltinScalars returns a fresh instance of every built-in scalar, in a
// stable order.
func BuiltinScalars() []*Scalar {
	return []*Scalar{
		IntScalar(), FloatScalar(), StringScalar(), BooleanScalar(), IDScalar(),
		LongScalar(), ShortScalar(), UShortScalar(), UIntScalar(), ULongScalar(),
		ByteScalar(), SByteScalar(), BigIntScalar(), DecimalScalar(),
		DateScalar(), DateTimeScalar(), DateTimeOffsetScalar(),
		SecondsScalar(), MillisecondsScalar(), GuidScalar(), UriScalar(),
	}
}
