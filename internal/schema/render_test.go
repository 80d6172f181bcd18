package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const starSDL = `type Query {
  hero(episode: Episode = JEDI): Character
  search(text: String!): [SearchResult!]!
}

enum Episode {
  NEWHOPE
  EMPIRE
  JEDI
}

interface Character {
  id: ID!
  name: String
}

type Human implements Character {
  id: ID!
  name: String
  homePlanet: String @deprecated(reason: "gone")
}

type Droid implements Character {
  id: ID!
  name: String
}

union SearchResult = Human | Droid
`

func TestBuildFromSDLRender(t *testing.T) {
	s, err := BuildFromSDL(starSDL, SDLOptions{})
	require.NoError(t, err)

	want := `interface Character {
  id: ID!
  name: String
}

type Droid implements Character {
  id: ID!
  name: String
}

enum Episode {
  NEWHOPE
  EMPIRE
  JEDI
}

type Human implements Character {
  id: ID!
  name: String
  homePlanet: String @deprecated(reason: "gone")
}

type Query {
  hero(episode: Episode = JEDI): Character
  search(text: String!): [SearchResult!]!
}

union SearchResult = Human | Droid
`
	if diff := cmp.Diff(want, Render(s)); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFromSDLBindings(t *testing.T) {
	hero := ResolverFunc(func(rc *ResolveContext) (any, error) { return nil, nil })
	s, err := BuildFromSDL(starSDL+`
extend type Query {
  when: DateTime
}
scalar DateTime
`, SDLOptions{
		Resolvers:   map[string]FieldResolver{"Query.hero": hero},
		Async:       map[string]bool{"Query.search": true},
		ResolveType: map[string]func(any) string{"Character": func(any) string { return "Droid" }},
		EnumValues:  map[string]map[string]any{"Episode": {"JEDI": 6}},
	})
	require.NoError(t, err)

	query := s.Query
	require.NotNil(t, query.FieldByName("hero").Resolver)
	require.True(t, query.FieldByName("search").Async)
	require.Equal(t, "DateTime", query.FieldByName("when").Type.String())
	require.True(t, query.FieldByName("when").Type.(*Scalar).IsBuiltin())

	character := s.Type("Character").(*Interface)
	require.Same(t, s.Type("Droid"), character.ResolveType(struct{}{}))

	episode := query.FieldByName("hero").Argument("episode")
	require.Equal(t, 6, episode.DefaultValue)
	require.Equal(t, "JEDI", FormatValue(episode.DefaultValue, episode.Type))

	human := s.Type("Human").(*Object)
	require.Equal(t, "gone", human.FieldByName("homePlanet").DeprecationReason)
}

func TestBuildFromSDLSchemaBlock(t *testing.T) {
	sdl := `schema { query: Root mutation: Change }
type Root { ok: Boolean }
type Change { set(value: Int = 3): Int }
`
	s, err := BuildFromSDL(sdl, SDLOptions{})
	require.NoError(t, err)
	require.Equal(t, "Root", s.Query.Name)
	require.Equal(t, "Change", s.Mutation.Name)
	require.Nil(t, s.Subscription)

	want := `schema {
  query: Root
  mutation: Change
}

type Change {
  set(value: Int = 3): Int
}

type Root {
  ok: Boolean
}
`
	if diff := cmp.Diff(want, Render(s)); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFromSDLErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		sdl  string
	}{
		{name: "syntax", sdl: `type Query {`},
		{name: "missing query", sdl: `type Foo { x: Int }`},
		{name: "unknown type", sdl: `type Query { x: Missing }`},
		{name: "extension of unknown type", sdl: "type Query { x: Int }\nextend type Other { y: Int }"},
		{name: "duplicate type", sdl: "type Query { x: Int }\ntype Query { y: Int }"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildFromSDL(tc.sdl, SDLOptions{})
			require.Error(t, err)
		})
	}
}

func TestFormatValue(t *testing.T) {
	point := &InputObject{Name: "Point", Fields: []*Argument{
		{Name: "x", Type: Int},
		{Name: "label", Type: String},
	}}
	require.Equal(t, `{x: 1, label: "a"}`, FormatValue(map[string]any{"label": "a", "x": 1}, point))
	require.Equal(t, `[1, 2]`, FormatValue([]any{1, 2}, ListOf(Int)))
	require.Equal(t, `null`, FormatValue(nil, String))
	require.Equal(t, `true`, FormatValue(true, NonNullOf(Boolean)))
}
