// Package starwars is a code-first demo schema over an in-memory store. It
// backs the end-to-end tests and the command's default schema.
package starwars

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hanpama/graphexec/internal/dataloader"
	schema "github.com/hanpama/graphexec/internal/schema"
)

// RequestContext carries the per-request loaders. Pass it as the request's
// user context; resolvers fall back to direct store lookups without it.
type RequestContext struct {
	Characters *dataloader.Loader[string, any]
}

// NewRequestContext creates fresh loaders reading from s.
func (s *Store) NewRequestContext() *RequestContext {
	return &RequestContext{
		Characters: dataloader.New(func(_ context.Context, ids []string) ([]any, []error) {
			out := make([]any, len(ids))
			for i, id := range ids {
				out[i] = s.Character(id)
			}
			return out, nil
		}, dataloader.WithName("characters")),
	}
}

// friendsResult completes once every friend load has been served.
type friendsResult []*dataloader.Result[any]

func (r friendsResult) GetResult(ctx context.Context) (any, error) {
	out := make([]any, len(r))
	for i, res := range r {
		v, err := res.Get(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func friendIDs(v any) []string {
	switch c := v.(type) {
	case *Human:
		return c.FriendIDs
	case *Droid:
		return c.FriendIDs
	}
	return nil
}

var (
	episodeType    = reflect.TypeOf(Episode(0))
	episodePtrType = reflect.TypeOf((*Episode)(nil))
)

// NewSchema builds the demo schema. The result is not initialized yet.
func NewSchema(store *Store) *schema.Schema {
	character := &schema.Interface{
		Name:        "Character",
		Description: "A character in the Star Wars Trilogy",
	}
	human := &schema.Object{
		Name:        "Human",
		Description: "A humanoid creature in the Star Wars universe.",
		Interfaces:  []schema.Type{character},
		IsTypeOf:    func(v any) bool { _, ok := v.(*Human); return ok },
	}
	droid := &schema.Object{
		Name:        "Droid",
		Description: "A mechanical creature in the Star Wars universe.",
		Interfaces:  []schema.Type{character},
		IsTypeOf:    func(v any) bool { _, ok := v.(*Droid); return ok },
	}
	starship := &schema.Object{
		Name:     "Starship",
		IsTypeOf: func(v any) bool { _, ok := v.(*Starship); return ok },
		Fields: []*schema.Field{
			{Name: "id", Type: schema.NonNullOf(schema.ID)},
			{Name: "name", GoType: reflect.TypeOf("")},
			{
				Name:      "length",
				Type:      schema.Float,
				Arguments: []*schema.Argument{{Name: "unit", Type: schema.String, DefaultValue: "METER"}},
				Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					length := rc.Source.(*Starship).Length
					if rc.Arg("unit") == "FOOT" {
						return length * 3.28084, nil
					}
					return length, nil
				}),
			},
		},
	}

	friends := &schema.Field{
		Name:        "friends",
		Description: "The friends of the character, or an empty list if they have none.",
		Type:        schema.ListOf(character),
		Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			ids := friendIDs(rc.Source)
			rctx, ok := rc.UserContext.(*RequestContext)
			if !ok {
				out := make([]any, len(ids))
				for i, id := range ids {
					out[i] = store.Character(id)
				}
				return out, nil
			}
			loads := make(friendsResult, len(ids))
			for i, id := range ids {
				loads[i] = rctx.Characters.Load(id)
			}
			return loads, nil
		}),
	}
	commonFields := func() []*schema.Field {
		return []*schema.Field{
			{Name: "id", Description: "The id of the character.", Type: schema.NonNullOf(schema.ID)},
			{Name: "name", Description: "The name of the character.", GoType: reflect.TypeOf("")},
			friends,
			{Name: "appearsIn", Description: "Which movies they appear in.", GoType: reflect.TypeOf([]Episode(nil))},
		}
	}
	character.Fields = commonFields()
	human.Fields = append(commonFields(),
		&schema.Field{Name: "homePlanet", Description: "The home planet of the human, or null if unknown.", GoType: reflect.TypeOf((*string)(nil))},
		&schema.Field{Name: "height", GoType: reflect.TypeOf(float64(0))},
	)
	droid.Fields = append(commonFields(),
		&schema.Field{Name: "primaryFunction", Description: "The primary function of the droid.", GoType: reflect.TypeOf("")},
	)

	searchResult := &schema.Union{Name: "SearchResult", Types: []schema.Type{human, droid, starship}}

	review := &schema.Object{
		Name: "Review",
		Fields: []*schema.Field{
			{Name: "episode", GoType: episodeType},
			{Name: "stars", GoType: reflect.TypeOf(0)},
			{Name: "commentary", GoType: reflect.TypeOf((*string)(nil))},
		},
	}
	reviewInput := &schema.InputObject{
		Name: "ReviewInput",
		Fields: []*schema.Argument{
			{Name: "stars", Type: schema.NonNullOf(schema.Int)},
			{Name: "commentary", Type: schema.String},
		},
		Parse: func(fields map[string]any) (any, error) {
			r := &Review{Stars: fields["stars"].(int)}
			if c, ok := fields["commentary"].(string); ok {
				r.Commentary = &c
			}
			return r, nil
		},
	}

	episodeArg := func() *schema.Argument {
		return &schema.Argument{Name: "episode", GoType: episodePtrType}
	}
	idArg := []*schema.Argument{{Name: "id", Type: schema.NonNullOf(schema.ID)}}

	query := &schema.Object{
		Name: "Query",
		Fields: []*schema.Field{
			{
				Name:      "hero",
				Type:      character,
				Arguments: []*schema.Argument{episodeArg()},
				Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					var ep *Episode
					if v, ok := rc.Arg("episode").(Episode); ok {
						ep = &v
					}
					return store.Hero(ep), nil
				}),
			},
			{
				Name:      "human",
				Type:      human,
				Arguments: idArg,
				Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					h, _ := store.Character(rc.Arg("id").(string)).(*Human)
					return h, nil
				}),
			},
			{
				Name:      "droid",
				Type:      droid,
				Arguments: idArg,
				Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					d, _ := store.Character(rc.Arg("id").(string)).(*Droid)
					return d, nil
				}),
			},
			{
				Name:      "character",
				Type:      character,
				Arguments: idArg,
				Async:     true,
				Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					return store.Character(rc.Arg("id").(string)), nil
				}),
			},
			{
				Name:      "search",
				Type:      schema.ListOf(searchResult),
				Arguments: []*schema.Argument{{Name: "text", Type: schema.NonNullOf(schema.String)}},
				Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					return store.Search(rc.Arg("text").(string)), nil
				}),
			},
			{
				Name:      "reviews",
				Type:      schema.NonNullOf(schema.ListOf(schema.NonNullOf(review))),
				Arguments: []*schema.Argument{{Name: "episode", GoType: episodeType}},
				Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					return store.Reviews(rc.Arg("episode").(Episode)), nil
				}),
			},
		},
	}

	mutation := &schema.Object{
		Name: "Mutation",
		Fields: []*schema.Field{{
			Name: "createReview",
			Type: review,
			Arguments: []*schema.Argument{
				{Name: "episode", GoType: episodeType},
				{Name: "review", Type: schema.NonNullOf(reviewInput)},
			},
			Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				r := *rc.Arg("review").(*Review)
				r.Episode = rc.Arg("episode").(Episode)
				if r.Stars < 0 || r.Stars > 5 {
					return nil, fmt.Errorf("stars must be between 0 and 5, got %d", r.Stars)
				}
				store.AddReview(&r)
				return &r, nil
			}),
		}},
	}

	subscription := &schema.Object{
		Name: "Subscription",
		Fields: []*schema.Field{{
			Name:      "reviewAdded",
			Type:      review,
			Arguments: []*schema.Argument{episodeArg()},
			Subscriber: schema.SubscriberFunc(func(rc *schema.ResolveContext) (<-chan any, error) {
				var ep *Episode
				if v, ok := rc.Arg("episode").(Episode); ok {
					ep = &v
				}
				return store.SubscribeReviews(rc.Context, ep), nil
			}),
		}},
	}

	return schema.NewSchema(query).
		SetMutation(mutation).
		SetSubscription(subscription).
		SetDescription("The Star Wars demo schema.")
}
