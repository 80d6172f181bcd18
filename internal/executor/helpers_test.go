package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/graphexec/internal/schema"
)

const testSDL = `
type Query {
  hero(episode: Episode): Character
  human(id: ID!): Human
  droids: [Droid!]!
  search(text: String!): [SearchResult]
  greet(name: String = "world", times: Int): String
  point(input: PointInput!): String
  failing: String
  failingNonNull: String!
  nested: Nested
  items: [String!]
  panics: String
}

enum Episode { NEWHOPE EMPIRE JEDI }

interface Character {
  id: ID!
  name: String
  friends: [Character]
}

type Human implements Character {
  id: ID!
  name: String
  friends: [Character]
  homePlanet: String
}

type Droid implements Character {
  id: ID!
  name: String
  friends: [Character]
  primaryFunction: String
}

union SearchResult = Human | Droid

input PointInput {
  x: Int!
  y: Int = 0
  label: String
}

type Nested {
  value: String!
  other: String
}
`

type human struct {
	ID         string
	Name       string
	HomePlanet string
	FriendIDs  []string
}

type droid struct {
	ID              string
	Name            string
	PrimaryFunction string
	FriendIDs       []string
}

var (
	luke = &human{ID: "1000", Name: "Luke Skywalker", HomePlanet: "Tatooine", FriendIDs: []string{"2001"}}
	r2d2 = &droid{ID: "2001", Name: "R2-D2", PrimaryFunction: "Astromech", FriendIDs: []string{"1000"}}
)

func characterByID(id string) any {
	switch id {
	case luke.ID:
		return luke
	case r2d2.ID:
		return r2d2
	}
	return nil
}

func friendsOf(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = characterByID(id)
	}
	return out
}

func testSDLOptions() schema.SDLOptions {
	return schema.SDLOptions{
		Resolvers: map[string]schema.FieldResolver{
			"Query.hero": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				if rc.Arg("episode") == "EMPIRE" {
					return luke, nil
				}
				return r2d2, nil
			}),
			"Query.human": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				if h, ok := characterByID(rc.Arg("id").(string)).(*human); ok {
					return h, nil
				}
				return nil, nil
			}),
			"Query.droids": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return []*droid{r2d2}, nil
			}),
			"Query.search": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return []any{luke, r2d2, nil}, nil
			}),
			"Query.greet": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				times := 1
				if n, ok := rc.Arg("times").(int); ok {
					times = n
				}
				return strings.Repeat(fmt.Sprintf("hello %s;", rc.Arg("name")), times), nil
			}),
			"Query.point": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				in := rc.Arg("input").(map[string]any)
				return fmt.Sprintf("%v,%v,%v", in["x"], in["y"], in["label"]), nil
			}),
			"Query.failing": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return nil, errors.New("boom")
			}),
			"Query.failingNonNull": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return nil, nil
			}),
			"Query.nested": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return map[string]any{"value": nil, "other": "x"}, nil
			}),
			"Query.items": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return []any{"a", nil, "c"}, nil
			}),
			"Query.panics": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				panic("kaboom")
			}),
			"Human.friends": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return friendsOf(rc.Source.(*human).FriendIDs), nil
			}),
			"Droid.friends": schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return friendsOf(rc.Source.(*droid).FriendIDs), nil
			}),
		},
		ResolveType: map[string]func(any) string{
			"Character": func(v any) string {
				switch v.(type) {
				case *human:
					return "Human"
				case *droid:
					return "Droid"
				}
				return ""
			},
		},
		IsTypeOf: map[string]func(any) bool{
			"Human": func(v any) bool { _, ok := v.(*human); return ok },
			"Droid": func(v any) bool { _, ok := v.(*droid); return ok },
		},
	}
}

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	s, err := schema.BuildFromSDL(testSDL, testSDLOptions())
	require.NoError(t, err)
	e, err := New(s, opts...)
	require.NoError(t, err)
	return e
}

func execute(t *testing.T, e *Executor, query string, vars map[string]any) *ExecutionResult {
	t.Helper()
	res, err := e.Execute(context.Background(), Request{Query: query, Variables: vars})
	require.NoError(t, err)
	return res
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func errorMessages(res *ExecutionResult) []string {
	out := make([]string, len(res.Errors))
	for i, e := range res.Errors {
		out[i] = e.Message
	}
	return out
}
