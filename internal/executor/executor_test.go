package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	schema "github.com/hanpama/graphexec/internal/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecuteKeepsSelectionOrder(t *testing.T) {
	e := newTestExecutor(t)
	res := execute(t, e, `{
  b: greet(name: "b")
  hero { name id ... on Droid { primaryFunction } }
  a: greet
}`, nil)

	require.Empty(t, res.Errors)
	want := `{"data":{"b":"hello b;","hero":{"name":"R2-D2","id":"2001","primaryFunction":"Astromech"},"a":"hello world;"}}`
	require.Equal(t, want, marshal(t, res))
}

func TestNullPropagation(t *testing.T) {
	e := newTestExecutor(t)

	for _, tc := range []struct {
		name     string
		query    string
		wantJSON string
		wantPath Path
		wantMsg  string
		wantCode string
	}{
		{
			name:     "non-null field nulls its parent",
			query:    `{ nested { value other } }`,
			wantJSON: `{"nested":null}`,
			wantPath: Path{"nested", "value"},
			wantMsg:  "Cannot return null for non-nullable field nested.value.",
			wantCode: CodeNonNull,
		},
		{
			name:     "non-null list item nulls the list",
			query:    `{ items }`,
			wantJSON: `{"items":null}`,
			wantPath: Path{"items", 1},
			wantMsg:  "Cannot return null for non-nullable field items[1].",
			wantCode: CodeNonNull,
		},
		{
			name:     "non-null root field nulls data",
			query:    `{ greet failingNonNull }`,
			wantJSON: `null`,
			wantPath: Path{"failingNonNull"},
			wantMsg:  "Cannot return null for non-nullable field failingNonNull.",
			wantCode: CodeNonNull,
		},
		{
			name:     "resolver error nulls a nullable field",
			query:    `{ failing greet }`,
			wantJSON: `{"failing":null,"greet":"hello world;"}`,
			wantPath: Path{"failing"},
			wantMsg:  "boom",
			wantCode: CodeUnhandled,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, e, tc.query, nil)
			require.True(t, res.Executed)
			require.Equal(t, tc.wantJSON, marshal(t, res.Data))
			require.Len(t, res.Errors, 1)

			got := res.Errors[0]
			if diff := cmp.Diff(tc.wantPath, got.Path); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, tc.wantMsg, got.Message)
			require.Equal(t, tc.wantCode, got.Code)
			require.Len(t, got.Locations, 1)
			require.Equal(t, 1, got.Locations[0].Line)
		})
	}
}

func TestAbstractTypes(t *testing.T) {
	e := newTestExecutor(t)
	res := execute(t, e, `{
  hero(episode: EMPIRE) { __typename name ... on Human { homePlanet } }
  search(text: "x") {
    __typename
    ... on Droid { primaryFunction }
    ... on Human { name }
  }
}`, nil)

	require.Empty(t, res.Errors)
	want := `{"hero":{"__typename":"Human","name":"Luke Skywalker","homePlanet":"Tatooine"},` +
		`"search":[{"__typename":"Human","name":"Luke Skywalker"},{"__typename":"Droid","primaryFunction":"Astromech"},null]}`
	require.Equal(t, want, marshal(t, res.Data))
}

func TestFragmentsOnInterfaces(t *testing.T) {
	e := newTestExecutor(t)
	res := execute(t, e, `
query {
  hero { ...names ...names friends { ...names } }
}
fragment names on Character { id name }
`, nil)

	require.Empty(t, res.Errors)
	require.Equal(t, `{"hero":{"id":"2001","name":"R2-D2","friends":[{"id":"1000","name":"Luke Skywalker"}]}}`, marshal(t, res.Data))
}

func TestIncludeAndSkip(t *testing.T) {
	e := newTestExecutor(t)
	res := execute(t, e, `query ($yes: Boolean!) {
  a: greet @include(if: $yes)
  b: greet @skip(if: $yes)
  c: greet @include(if: false) @skip(if: false)
  d: greet @include(if: true) @skip(if: true)
}`, map[string]any{"yes": true})

	require.Empty(t, res.Errors)
	require.Equal(t, `{"a":"hello world;"}`, marshal(t, res.Data))
}

func TestIncludeAndSkipWithoutCondition(t *testing.T) {
	e := newTestExecutor(t, WithValidation(false))
	res := execute(t, e, `query ($v: Boolean) {
  a: greet @include(if: $v)
  b: greet @skip(if: $v)
}`, nil)

	require.Empty(t, res.Errors)
	require.Equal(t, `{"b":"hello world;"}`, marshal(t, res.Data))
}

func petSchema(t *testing.T) *schema.Schema {
	t.Helper()
	name := func() []*schema.Field { return []*schema.Field{{Name: "name", Type: schema.String}} }
	cat := &schema.Object{Name: "Cat", Interfaces: []schema.Type{schema.Ref("Pet")}, Fields: name()}
	dog := &schema.Object{
		Name:       "Dog",
		Interfaces: []schema.Type{schema.Ref("Pet")},
		IsTypeOf:   func(any) bool { return true },
		Fields:     name(),
	}
	stray := &schema.Object{Name: "Stray", Fields: name()}
	pet := &schema.Interface{Name: "Pet", Fields: name(), ResolveType: func(v any) *schema.Object {
		switch v {
		case "stray":
			return stray
		case "none":
			return nil
		}
		return cat
	}}
	query := &schema.Object{Name: "Query", Fields: []*schema.Field{{
		Name:      "pet",
		Type:      pet,
		Arguments: []*schema.Argument{{Name: "kind", Type: schema.String, DefaultValue: "cat"}},
		Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			return rc.Arg("kind"), nil
		}),
	}}}
	s := schema.NewSchema(query).AddType(dog).AddType(cat).AddType(stray)
	require.NoError(t, s.Initialize())
	return s
}

func TestResolveTypeWinsOverIsTypeOf(t *testing.T) {
	e, err := New(petSchema(t))
	require.NoError(t, err)

	res := execute(t, e, `{ pet { __typename } }`, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, `{"pet":{"__typename":"Cat"}}`, marshal(t, res.Data))

	t.Run("type outside the possible types", func(t *testing.T) {
		res := execute(t, e, `{ pet(kind: "stray") { __typename } }`, nil)
		require.Equal(t, `{"pet":null}`, marshal(t, res.Data))
		require.Equal(t, []string{"Runtime object type 'Stray' is not a possible type for 'Pet'."}, errorMessages(res))
		require.Equal(t, CodeInvalidType, res.Errors[0].Code)
	})

	t.Run("no type resolved", func(t *testing.T) {
		res := execute(t, e, `{ pet(kind: "none") { __typename } }`, nil)
		require.Equal(t, `{"pet":null}`, marshal(t, res.Data))
		require.Len(t, res.Errors, 1)
		require.Contains(t, res.Errors[0].Message, "must resolve to an object type")
	})
}

func TestIntrospection(t *testing.T) {
	e := newTestExecutor(t)
	res := execute(t, e, `{
  __typename
  __schema { queryType { name } mutationType { name } }
  __type(name: "Character") { kind name possibleTypes { name } }
}`, nil)
	require.Empty(t, res.Errors)

	data := res.Data.(OrderedMap).ToMap()
	require.Equal(t, "Query", data["__typename"])
	require.Equal(t, map[string]any{
		"queryType":    map[string]any{"name": "Query"},
		"mutationType": nil,
	}, data["__schema"])

	typ := data["__type"].(map[string]any)
	require.Equal(t, "INTERFACE", typ["kind"])
	require.ElementsMatch(t, []any{
		map[string]any{"name": "Human"},
		map[string]any{"name": "Droid"},
	}, typ["possibleTypes"])

	t.Run("disabled", func(t *testing.T) {
		e := newTestExecutor(t, WithIntrospection(false))
		res := execute(t, e, `{ __schema { queryType { name } } }`, nil)
		require.False(t, res.Executed)
		require.Equal(t, []string{"GraphQL introspection is not allowed."}, errorMessages(res))

		res = execute(t, e, `{ __typename }`, nil)
		require.Empty(t, res.Errors)
	})
}

func TestRequestErrors(t *testing.T) {
	e := newTestExecutor(t)

	for _, tc := range []struct {
		name     string
		executor *Executor
		req      Request
		wantCode string
		wantMsg  string
	}{
		{
			name:     "syntax",
			req:      Request{Query: `{ greet `},
			wantCode: CodeSyntax,
		},
		{
			name:     "unknown field",
			req:      Request{Query: `{ nope }`},
			wantCode: CodeValidation,
		},
		{
			name:     "ambiguous operation",
			req:      Request{Query: `query A { greet } query B { greet }`},
			wantCode: CodeInvalidOp,
			wantMsg:  "Must provide operation name if query contains multiple operations.",
		},
		{
			name:     "unknown operation",
			req:      Request{Query: `query A { greet }`, OperationName: "B"},
			wantCode: CodeInvalidOp,
			wantMsg:  "Unknown operation named 'B'.",
		},
		{
			name:     "missing root type",
			executor: newTestExecutor(t, WithValidation(false)),
			req:      Request{Query: `mutation { greet }`},
			wantCode: CodeInvalidOp,
			wantMsg:  "Schema is not configured to execute mutation operation.",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ex := e
			if tc.executor != nil {
				ex = tc.executor
			}
			res, err := ex.Execute(context.Background(), tc.req)
			require.NoError(t, err)
			require.False(t, res.Executed)
			require.NotEmpty(t, res.Errors)
			require.Equal(t, tc.wantCode, res.Errors[0].Code)
			if tc.wantMsg != "" {
				require.Equal(t, tc.wantMsg, res.Errors[0].Message)
			}
			require.NotContains(t, marshal(t, res), `"data"`)
		})
	}
}

func TestExecuteSelectsNamedOperation(t *testing.T) {
	e := newTestExecutor(t)
	res, err := e.Execute(context.Background(), Request{
		Query:         `query A { a: greet } query B { b: greet(name: "b") }`,
		OperationName: "B",
	})
	require.NoError(t, err)
	require.Equal(t, `{"b":"hello b;"}`, marshal(t, res.Data))
}

type codedError struct{ code string }

func (e codedError) Error() string     { return "coded " + e.code }
func (e codedError) ErrorCode() string { return e.code }

func TestResolverErrors(t *testing.T) {
	t.Run("panic is recovered", func(t *testing.T) {
		e := newTestExecutor(t)
		res := execute(t, e, `{ panics greet }`, nil)
		require.Equal(t, `{"panics":null,"greet":"hello world;"}`, marshal(t, res.Data))
		require.Len(t, res.Errors, 1)
		require.Contains(t, res.Errors[0].Message, "kaboom")
	})

	t.Run("masked", func(t *testing.T) {
		e := newTestExecutor(t, WithMaskUnhandledErrors(true))
		res := execute(t, e, `{ failing }`, nil)
		require.Equal(t, []string{"Error trying to resolve field 'failing'."}, errorMessages(res))
		require.Equal(t, CodeUnhandled, res.Errors[0].Code)
	})

	t.Run("delegate replaces the error", func(t *testing.T) {
		var seen error
		e := newTestExecutor(t, WithUnhandledErrorDelegate(func(_ context.Context, err error) error {
			seen = err
			replaced := NewExecutionError("replaced", err)
			replaced.Code = "CUSTOM"
			return replaced
		}))
		res := execute(t, e, `{ failing }`, nil)
		require.EqualError(t, seen, "boom")
		require.Equal(t, []string{"replaced"}, errorMessages(res))
		require.Equal(t, []string{"CUSTOM"}, res.Errors[0].Codes)
		require.Equal(t, Path{"failing"}, res.Errors[0].Path)
		require.True(t, errors.Is(res.Errors[0], seen))
	})

	t.Run("codes of wrapped errors", func(t *testing.T) {
		query := &schema.Object{Name: "Query", Fields: []*schema.Field{{
			Name: "x",
			Type: schema.String,
			Resolver: schema.ResolverFunc(func(*schema.ResolveContext) (any, error) {
				return nil, codedError{code: "NOT_FOUND"}
			}),
		}}}
		e, err := New(schema.NewSchema(query))
		require.NoError(t, err)
		res := execute(t, e, `{ x }`, nil)
		require.Equal(t, []string{CodeUnhandled, "NOT_FOUND"}, res.Errors[0].Codes)
		require.JSONEq(t,
			`{"message":"coded NOT_FOUND","locations":[{"line":1,"column":3}],"path":["x"],"extensions":{"code":"UNHANDLED_ERROR","codes":["UNHANDLED_ERROR","NOT_FOUND"]}}`,
			marshal(t, res.Errors[0]))
	})
}

type recordingListener struct {
	before, after int
	lastErrors    int
}

func (l *recordingListener) BeforeExecution(context.Context, *Request) { l.before++ }

func (l *recordingListener) AfterExecution(_ context.Context, _ *Request, res *ExecutionResult) {
	l.after++
	l.lastErrors = len(res.Errors)
}

func TestListeners(t *testing.T) {
	l := &recordingListener{}
	e := newTestExecutor(t, WithListener(l))
	execute(t, e, `{ failing }`, nil)
	require.Equal(t, 1, l.before)
	require.Equal(t, 1, l.after)
	require.Equal(t, 1, l.lastErrors)
}

func TestResolveContext(t *testing.T) {
	var got *schema.ResolveContext
	item := &schema.Object{Name: "Item", Fields: []*schema.Field{
		{Name: "a", Type: schema.String},
		{Name: "b", Type: schema.String},
	}}
	query := &schema.Object{Name: "Query", Fields: []*schema.Field{{
		Name:      "item",
		Type:      item,
		Arguments: []*schema.Argument{{Name: "id", Type: schema.Int}},
		Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			got = rc
			return map[string]any{"a": "1", "b": "2"}, nil
		}),
	}}}
	e, err := New(schema.NewSchema(query))
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), Request{
		Query:       `query Q($id: Int) { it: item(id: $id) { b x: a } }`,
		Variables:   map[string]any{"id": float64(7)},
		RootValue:   "root",
		UserContext: "user",
	})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, `{"it":{"b":"2","x":"1"}}`, marshal(t, res.Data))

	require.Equal(t, "item", got.FieldName)
	require.Equal(t, "Query", got.ParentType.Name)
	require.Equal(t, "root", got.Source)
	require.Equal(t, "user", got.UserContext)
	require.Equal(t, 7, got.Arg("id"))
	require.Equal(t, []any{"it"}, got.Path)
	require.Equal(t, []string{"b", "x"}, got.SubFields)
	require.Equal(t, "Q", got.Operation.Name)
}
