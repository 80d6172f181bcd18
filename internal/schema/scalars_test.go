package schema

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/graphexec/internal/language"
)

func TestScalarCoercion(t *testing.T) {
	for _, tc := range []struct {
		name   string
		conv   func(any) (any, bool)
		in     any
		want   any
		wantOK bool
	}{
		{name: "int from float64", conv: Int.ParseValue, in: float64(3), want: 3, wantOK: true},
		{name: "int outside 32 bits", conv: Int.ParseValue, in: int64(math.MaxInt32) + 1, want: int64(math.MaxInt32) + 1, wantOK: true},
		{name: "int rejects fraction", conv: Int.ParseValue, in: 1.5},
		{name: "int rejects string", conv: Int.ParseValue, in: "1"},
		{name: "int from json number", conv: Int.ParseValue, in: json.Number("42"), want: 42, wantOK: true},
		{name: "float from int", conv: Float.Serialize, in: 2, want: float64(2), wantOK: true},
		{name: "float rejects NaN", conv: Float.Serialize, in: math.NaN()},
		{name: "string serializes numbers", conv: String.Serialize, in: 12, want: "12", wantOK: true},
		{name: "string parse rejects numbers", conv: String.ParseValue, in: 12},
		{name: "boolean", conv: Boolean.ParseValue, in: true, want: true, wantOK: true},
		{name: "id from int", conv: ID.Serialize, in: 7, want: "7", wantOK: true},
		{name: "short range", conv: ShortScalar().ParseValue, in: 40000},
		{name: "byte", conv: ByteScalar().ParseValue, in: 255, want: uint8(255), wantOK: true},
		{name: "ulong max", conv: ULongScalar().ParseValue, in: uint64(math.MaxUint64), want: uint64(math.MaxUint64), wantOK: true},
		{name: "seconds", conv: SecondsScalar().Serialize, in: 90 * time.Second, want: int64(90), wantOK: true},
		{name: "uri must be absolute", conv: UriScalar().ParseValue, in: "/relative"},
		{name: "guid rejects junk", conv: GuidScalar().ParseValue, in: "nope"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.conv(tc.in)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestScalarRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	for _, tc := range []struct {
		scalar *Scalar
		value  any
	}{
		{DateTimeScalar(), at},
		{DateScalar(), time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{GuidScalar(), id},
		{LongScalar(), int64(math.MinInt64)},
		{MillisecondsScalar(), 1500 * time.Millisecond},
	} {
		t.Run(tc.scalar.Name, func(t *testing.T) {
			out, ok := tc.scalar.Serialize(tc.value)
			require.True(t, ok)
			back, ok := tc.scalar.ParseValue(out)
			require.True(t, ok)
			require.Equal(t, tc.value, back)
		})
	}
}

func TestLiteralValue(t *testing.T) {
	v := &language.Value{Kind: language.ObjectValue, Children: []*language.ChildValue{
		{Name: "n", Value: &language.Value{Kind: language.IntValue, Raw: "5"}},
		{Name: "v", Value: &language.Value{Kind: language.Variable, Raw: "x"}},
		{Name: "l", Value: &language.Value{Kind: language.ListValue, Children: []*language.ChildValue{
			{Value: &language.Value{Kind: language.BooleanValue, Raw: "true"}},
		}}},
	}}
	got := LiteralValue(v, map[string]any{"x": "bound"})
	require.Equal(t, map[string]any{"n": 5, "v": "bound", "l": []any{true}}, got)
}

func TestCustomScalarDefaults(t *testing.T) {
	s := &Scalar{Name: "Any"}
	require.NoError(t, s.Initialize(nil))
	out, ok := s.ParseLiteral(&language.Value{Kind: language.StringValue, Raw: "x"})
	require.True(t, ok)
	require.Equal(t, "x", out)
	_, ok = s.ParseLiteral(&language.Value{Kind: language.Variable, Raw: "x"})
	require.False(t, ok)
}
