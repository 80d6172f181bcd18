package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
)

func TestArgumentCoercion(t *testing.T) {
	e := newTestExecutor(t)

	for _, tc := range []struct {
		name  string
		query string
		vars  map[string]any
		want  string
	}{
		{name: "default value", query: `{ greet }`, want: `{"greet":"hello world;"}`},
		{name: "literal", query: `{ greet(name: "x", times: 2) }`, want: `{"greet":"hello x;hello x;"}`},
		{
			name:  "variables",
			query: `query ($n: String, $t: Int) { greet(name: $n, times: $t) }`,
			vars:  map[string]any{"n": "v", "t": float64(3)},
			want:  `{"greet":"hello v;hello v;hello v;"}`,
		},
		{
			name:  "absent variable falls back to the argument default",
			query: `query ($n: String) { greet(name: $n) }`,
			want:  `{"greet":"hello world;"}`,
		},
		{
			name:  "variable default",
			query: `query ($n: String = "dflt") { greet(name: $n) }`,
			want:  `{"greet":"hello dflt;"}`,
		},
		{
			name:  "input object literal with field default",
			query: `{ point(input: {x: 1, label: "a"}) }`,
			want:  `{"point":"1,0,a"}`,
		},
		{
			name:  "input object variable",
			query: `query ($p: PointInput!) { point(input: $p) }`,
			vars:  map[string]any{"p": map[string]any{"x": float64(2), "y": float64(5)}},
			want:  `{"point":"2,5,<nil>"}`,
		},
		{
			name:  "variable nested in a literal",
			query: `query ($x: Int!) { point(input: {x: $x}) }`,
			vars:  map[string]any{"x": 9},
			want:  `{"point":"9,0,<nil>"}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, e, tc.query, tc.vars)
			require.Empty(t, res.Errors)
			require.JSONEq(t, tc.want, marshal(t, res.Data))
		})
	}
}

func TestVariableErrors(t *testing.T) {
	e := newTestExecutor(t)

	for _, tc := range []struct {
		name    string
		vars    map[string]any
		wantMsg string
	}{
		{
			name:    "missing",
			wantMsg: "Variable '$p' is invalid. No value provided for a non-null variable.",
		},
		{
			name:    "null",
			vars:    map[string]any{"p": nil},
			wantMsg: "Variable '$p' is invalid. Expected non-null value of type 'PointInput!', found null.",
		},
		{
			name:    "wrong field type",
			vars:    map[string]any{"p": map[string]any{"x": "nope"}},
			wantMsg: `Variable '$p' is invalid. In field 'x': Expected type 'Int', found "nope".`,
		},
		{
			name:    "missing required field",
			vars:    map[string]any{"p": map[string]any{"y": 1}},
			wantMsg: "Variable '$p' is invalid. Field 'PointInput.x' of required type 'Int!' was not provided.",
		},
		{
			name:    "unknown field",
			vars:    map[string]any{"p": map[string]any{"x": 1, "z": 1}},
			wantMsg: "Variable '$p' is invalid. Unknown field 'z' on input type 'PointInput'.",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, e, `query ($p: PointInput!) { point(input: $p) }`, tc.vars)
			require.False(t, res.Executed)
			require.Equal(t, []string{tc.wantMsg}, errorMessages(res))
			require.Equal(t, CodeInvalidValue, res.Errors[0].Code)
			require.Len(t, res.Errors[0].Locations, 1)
		})
	}
}

func TestCoerceValue(t *testing.T) {
	color := &schema.Enum{Name: "Color", Values: []*schema.EnumValue{{Name: "RED", Value: 1}}}

	for _, tc := range []struct {
		name    string
		typ     schema.Type
		value   *language.Value
		vars    map[string]any
		want    any
		wantErr string
	}{
		{
			name:  "single value into list",
			typ:   schema.ListOf(schema.Int),
			value: &language.Value{Kind: language.IntValue, Raw: "4"},
			want:  []any{4},
		},
		{
			name: "list",
			typ:  schema.ListOf(schema.String),
			value: &language.Value{Kind: language.ListValue, Children: []*language.ChildValue{
				{Value: &language.Value{Kind: language.StringValue, Raw: "a"}},
				{Value: &language.Value{Kind: language.NullValue}},
			}},
			want: []any{"a", nil},
		},
		{
			name:  "enum internal value",
			typ:   color,
			value: &language.Value{Kind: language.EnumValue, Raw: "RED"},
			want:  1,
		},
		{
			name:    "unknown enum value",
			typ:     color,
			value:   &language.Value{Kind: language.EnumValue, Raw: "BLUE"},
			wantErr: "Value 'BLUE' is not defined in enum 'Color'.",
		},
		{
			name:    "null for non-null",
			typ:     schema.NonNullOf(schema.Int),
			value:   &language.Value{Kind: language.NullValue},
			wantErr: "Expected non-null value of type 'Int!', found null.",
		},
		{
			name:    "missing variable for non-null",
			typ:     schema.NonNullOf(schema.Int),
			value:   &language.Value{Kind: language.Variable, Raw: "v"},
			wantErr: "Expected non-null value for variable '$v'.",
		},
		{
			name:  "variable",
			typ:   schema.Int,
			value: &language.Value{Kind: language.Variable, Raw: "v"},
			vars:  map[string]any{"v": 3},
			want:  3,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CoerceValue(tc.typ, tc.value, tc.vars)
			if tc.wantErr != "" {
				require.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestGetArgumentValues(t *testing.T) {
	defs := []*schema.Argument{
		{Name: "req", Type: schema.NonNullOf(schema.Int)},
		{Name: "opt", Type: schema.String},
		{Name: "dflt", Type: schema.Int, DefaultValue: 10},
	}
	args := language.ArgumentList{
		{Name: "req", Value: &language.Value{Kind: language.IntValue, Raw: "1"}},
	}
	got, err := GetArgumentValues(defs, args, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"req": 1, "dflt": 10}, got)

	_, err = GetArgumentValues(defs, nil, nil)
	require.EqualError(t, err, "Argument 'req' of required type 'Int!' was not provided.")
}
