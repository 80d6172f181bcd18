package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathString(t *testing.T) {
	require.Equal(t, "hero.friends[0].name", Path{"hero", "friends", 0, "name"}.String())
	require.Equal(t, "[2][1]", Path{2, 1}.String())
	require.Equal(t, "", Path{}.String())
}

func TestExecutionResultJSON(t *testing.T) {
	for _, tc := range []struct {
		name string
		res  *ExecutionResult
		want string
	}{
		{
			name: "executed with errors keeps data",
			res: &ExecutionResult{
				Data:     OrderedMap{{"b", 1}, {"a", nil}},
				Errors:   []*ExecutionError{{Message: "x", Path: Path{"a"}}},
				Executed: true,
			},
			want: `{"data":{"b":1,"a":null},"errors":[{"message":"x","path":["a"]}]}`,
		},
		{
			name: "nulled root",
			res:  &ExecutionResult{Executed: true, Errors: []*ExecutionError{{Message: "x"}}},
			want: `{"data":null,"errors":[{"message":"x"}]}`,
		},
		{
			name: "request error omits data",
			res: &ExecutionResult{Errors: []*ExecutionError{{
				Message:   "bad",
				Locations: []Location{{Line: 1, Column: 2}},
				Code:      CodeSyntax,
				Codes:     []string{CodeSyntax},
				Data:      map[string]any{"k": "v"},
			}}},
			want: `{"errors":[{"message":"bad","locations":[{"line":1,"column":2}],"extensions":{"code":"SYNTAX_ERROR","codes":["SYNTAX_ERROR"],"data":{"k":"v"}}}]}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, marshal(t, tc.res))
		})
	}
}

func TestOrderedMap(t *testing.T) {
	m := OrderedMap{{"z", OrderedMap{{"y", []any{OrderedMap{{"x", 1}}}}}}, {"a", 2}}
	require.Equal(t, []string{"z", "a"}, m.Keys())
	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
	_, ok = m.Get("missing")
	require.False(t, ok)
	require.Equal(t, map[string]any{
		"z": map[string]any{"y": []any{map[string]any{"x": 1}}},
		"a": 2,
	}, m.ToMap())
}

func TestExecutionErrorsConcurrentAdd(t *testing.T) {
	var list ExecutionErrors
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			list.Add(NewExecutionError("", errors.New("e")))
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	require.Equal(t, 8, list.Len())
	require.Equal(t, "e", list.List()[0].Message)
}
