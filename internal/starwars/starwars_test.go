package starwars

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hanpama/graphexec/internal/dataloader"
	executor "github.com/hanpama/graphexec/internal/executor"
	schema "github.com/hanpama/graphexec/internal/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newExecutor(t *testing.T) (*executor.Executor, *Store) {
	t.Helper()
	store := NewStore()
	e, err := executor.New(NewSchema(store))
	require.NoError(t, err)
	return e, store
}

func run(t *testing.T, e *executor.Executor, req executor.Request) string {
	t.Helper()
	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	out, err := json.Marshal(res)
	require.NoError(t, err)
	return string(out)
}

func TestQueries(t *testing.T) {
	e, store := newExecutor(t)

	tests := []struct {
		name  string
		query string
		vars  map[string]any
		want  string
	}{
		{
			name:  "hero defaults to R2-D2",
			query: `{ hero { id name appearsIn } }`,
			want:  `{"data":{"hero":{"id":"2001","name":"R2-D2","appearsIn":["NEWHOPE","EMPIRE","JEDI"]}}}`,
		},
		{
			name:  "hero of Empire through a variable",
			query: `query ($ep: Episode) { hero(episode: $ep) { name ... on Human { homePlanet height } } }`,
			vars:  map[string]any{"ep": "EMPIRE"},
			want:  `{"data":{"hero":{"name":"Luke Skywalker","homePlanet":"Tatooine","height":1.72}}}`,
		},
		{
			name:  "friends",
			query: `{ hero { friends { __typename name } } }`,
			want:  `{"data":{"hero":{"friends":[{"__typename":"Human","name":"Luke Skywalker"},{"__typename":"Human","name":"Han Solo"},{"__typename":"Human","name":"Leia Organa"}]}}}`,
		},
		{
			name:  "missing home planet is null",
			query: `{ human(id: "1002") { name homePlanet } }`,
			want:  `{"data":{"human":{"name":"Han Solo","homePlanet":null}}}`,
		},
		{
			name:  "wrong kind of character is null",
			query: `{ droid(id: "1000") { name } }`,
			want:  `{"data":{"droid":null}}`,
		},
		{
			name:  "async character",
			query: `{ a: character(id: "2000") { name ... on Droid { primaryFunction } } b: character(id: "9") { name } }`,
			want:  `{"data":{"a":{"name":"C-3PO","primaryFunction":"Protocol"},"b":null}}`,
		},
		{
			name:  "search over a union",
			query: `{ search(text: "AN") { __typename ... on Human { name } ... on Starship { name length } } }`,
			want:  `{"data":{"search":[{"__typename":"Human","name":"Han Solo"},{"__typename":"Human","name":"Leia Organa"},{"__typename":"Starship","name":"TIE Advanced x1","length":9.2}]}}`,
		},
		{
			name:  "no reviews yet",
			query: `{ reviews(episode: JEDI) { stars } }`,
			want:  `{"data":{"reviews":[]}}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := run(t, e, executor.Request{Query: tc.query, Variables: tc.vars, UserContext: store.NewRequestContext()})
			require.JSONEq(t, tc.want, got)
		})
	}
}

func TestLengthUnit(t *testing.T) {
	e, _ := newExecutor(t)
	got := run(t, e, executor.Request{Query: `{ search(text: "shuttle") { ... on Starship { m: length f: length(unit: "FOOT") } } }`})

	var res struct {
		Data struct {
			Search []struct{ M, F float64 }
		}
	}
	require.NoError(t, json.Unmarshal([]byte(got), &res))
	require.Len(t, res.Data.Search, 1)
	require.Equal(t, 20.0, res.Data.Search[0].M)
	require.InDelta(t, 65.6168, res.Data.Search[0].F, 1e-9)
}

func TestCreateReview(t *testing.T) {
	e, _ := newExecutor(t)

	got := run(t, e, executor.Request{
		Query: `mutation ($review: ReviewInput!) { createReview(episode: JEDI, review: $review) { episode stars commentary } }`,
		Variables: map[string]any{
			"review": map[string]any{"stars": float64(5), "commentary": "Great!"},
		},
	})
	require.JSONEq(t, `{"data":{"createReview":{"episode":"JEDI","stars":5,"commentary":"Great!"}}}`, got)

	got = run(t, e, executor.Request{Query: `mutation { createReview(episode: JEDI, review: {stars: 6}) { stars } }`})
	require.JSONEq(t, `{
  "data":{"createReview":null},
  "errors":[{"message":"stars must be between 0 and 5, got 6","locations":[{"line":1,"column":12}],"path":["createReview"],"extensions":{"code":"UNHANDLED_ERROR","codes":["UNHANDLED_ERROR"]}}]
}`, got)

	got = run(t, e, executor.Request{Query: `{ jedi: reviews(episode: JEDI) { stars commentary } empire: reviews(episode: EMPIRE) { stars } }`})
	require.JSONEq(t, `{"data":{"jedi":[{"stars":5,"commentary":"Great!"}],"empire":[]}}`, got)
}

func TestReviewSubscription(t *testing.T) {
	e, store := newExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := e.Execute(ctx, executor.Request{Query: `subscription { reviewAdded(episode: NEWHOPE) { episode stars } }`})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	stream := res.Streams["reviewAdded"]
	require.NotNil(t, stream)

	store.AddReview(&Review{Episode: Empire, Stars: 1})
	store.AddReview(&Review{Episode: NewHope, Stars: 4})

	select {
	case ev := <-stream:
		out, err := json.Marshal(ev)
		require.NoError(t, err)
		require.JSONEq(t, `{"data":{"reviewAdded":{"episode":"NEWHOPE","stars":4}}}`, string(out))
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("stream not closed after cancel")
		}
	}
}

func TestFriendsAreBatched(t *testing.T) {
	e, store := newExecutor(t)

	var (
		mu      sync.Mutex
		batches [][]string
	)
	rctx := &RequestContext{
		Characters: dataloader.New(func(_ context.Context, ids []string) ([]any, []error) {
			mu.Lock()
			batches = append(batches, append([]string(nil), ids...))
			mu.Unlock()
			out := make([]any, len(ids))
			for i, id := range ids {
				out[i] = store.Character(id)
			}
			return out, nil
		}),
	}

	got := run(t, e, executor.Request{
		Query:       `{ hero { friends { name friends { name } } } }`,
		UserContext: rctx,
	})
	require.Contains(t, got, `"name":"C-3PO"`)
	require.NotContains(t, got, `"errors"`)

	require.Len(t, batches, 2)
	require.Equal(t, []string{"1000", "1002", "1003"}, batches[0])
	require.ElementsMatch(t, []string{"2000", "2001"}, batches[1])
}

func TestIntrospection(t *testing.T) {
	e, _ := newExecutor(t)
	got := run(t, e, executor.Request{Query: `{
  __type(name: "Episode") { kind description enumValues { name description } }
  __schema { subscriptionType { name } }
}`})
	require.JSONEq(t, `{"data":{
  "__type":{"kind":"ENUM","description":"One of the films in the Star Wars Trilogy","enumValues":[
    {"name":"NEWHOPE","description":"Released in 1977."},
    {"name":"EMPIRE","description":"Released in 1980."},
    {"name":"JEDI","description":"Released in 1983."}
  ]},
  "__schema":{"subscriptionType":{"name":"Subscription"}}
}}`, got)
}

func TestRenderedSchema(t *testing.T) {
	s := NewSchema(NewStore())
	require.NoError(t, s.Initialize())
	sdl := schema.Render(s)

	for _, want := range []string{
		"union SearchResult = Human | Droid | Starship",
		"type Human implements Character {",
		"appearsIn: [Episode!]",
		"homePlanet: String\n",
		"createReview(episode: Episode!, review: ReviewInput!): Review",
		`length(unit: String = "METER"): Float`,
	} {
		require.True(t, strings.Contains(sdl, want), "missing %q in\n%s", want, sdl)
	}
}
