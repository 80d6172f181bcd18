package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	schema "github.com/hanpama/graphexec/internal/schema"
)

// counterSchema has a subscription field counting from 1 to upTo, or
// forever when upTo is negative.
func counterSchema() *schema.Schema {
	tick := &schema.Object{Name: "Tick", Fields: []*schema.Field{
		{Name: "n", Type: schema.NonNullOf(schema.Int)},
		{Name: "double", Type: schema.Int, Async: true, Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			return rc.Source.(map[string]any)["n"].(int) * 2, nil
		})},
	}}
	counter := schema.SubscriberFunc(func(rc *schema.ResolveContext) (<-chan any, error) {
		upTo := rc.Arg("upTo").(int)
		if upTo == 0 {
			return nil, errors.New("nothing to count")
		}
		out := make(chan any)
		go func() {
			defer close(out)
			for i := 1; upTo < 0 || i <= upTo; i++ {
				select {
				case out <- i:
				case <-rc.Context.Done():
					return
				}
			}
		}()
		return out, nil
	})
	subscription := &schema.Object{Name: "Subscription", Fields: []*schema.Field{
		{
			Name:       "counter",
			Type:       schema.Int,
			Arguments:  []*schema.Argument{{Name: "upTo", Type: schema.NonNullOf(schema.Int)}},
			Subscriber: counter,
		},
		{
			Name:       "ticks",
			Type:       tick,
			Arguments:  []*schema.Argument{{Name: "upTo", Type: schema.NonNullOf(schema.Int)}},
			Subscriber: counter,
			Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
				return map[string]any{"n": rc.Source}, nil
			}),
		},
	}}
	query := &schema.Object{Name: "Query", Fields: []*schema.Field{{Name: "ok", Type: schema.Boolean}}}
	return schema.NewSchema(query).SetSubscription(subscription)
}

func collect(t *testing.T, stream <-chan *ExecutionResult) []string {
	t.Helper()
	var out []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case res, ok := <-stream:
			if !ok {
				return out
			}
			out = append(out, marshal(t, res))
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestSubscriptionStreams(t *testing.T) {
	e, err := New(counterSchema())
	require.NoError(t, err)

	t.Run("event is the field value", func(t *testing.T) {
		res := execute(t, e, `subscription { counter(upTo: 2) }`, nil)
		require.Empty(t, res.Errors)
		require.Len(t, res.Streams, 1)
		require.Equal(t, []string{
			`{"data":{"counter":1}}`,
			`{"data":{"counter":2}}`,
		}, collect(t, res.Streams["counter"]))
	})

	t.Run("resolver maps the event", func(t *testing.T) {
		res := execute(t, e, `subscription { t: ticks(upTo: 2) { n double } }`, nil)
		require.Empty(t, res.Errors)
		require.Equal(t, []string{
			`{"data":{"t":{"n":1,"double":2}}}`,
			`{"data":{"t":{"n":2,"double":4}}}`,
		}, collect(t, res.Streams["t"]))
	})

	t.Run("subscribe error", func(t *testing.T) {
		res := execute(t, e, `subscription { counter(upTo: 0) }`, nil)
		require.Nil(t, res.Streams)
		require.Equal(t, []string{"nothing to count"}, errorMessages(res))
		require.Equal(t, Path{"counter"}, res.Errors[0].Path)
	})
}

func TestSubscriptionStopsOnCancel(t *testing.T) {
	e, err := New(counterSchema())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := e.Execute(ctx, Request{Query: `subscription { counter(upTo: -1) }`})
	require.NoError(t, err)

	stream := res.Streams["counter"]
	first := <-stream
	require.Equal(t, `{"data":{"counter":1}}`, marshal(t, first))

	cancel()
	collect(t, stream)
}

func TestSubscriptionFailureStopsStartedStreams(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, err := New(counterSchema(), WithValidation(false))
	require.NoError(t, err)
	res := execute(t, e, `subscription { counter(upTo: -1) ticks(upTo: 0) { n } }`, nil)
	require.Nil(t, res.Streams)
	require.Equal(t, []string{"nothing to count"}, errorMessages(res))
	require.Equal(t, Path{"ticks"}, res.Errors[0].Path)
}
