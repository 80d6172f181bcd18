package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hanpama/graphexec/internal/dataloader"
	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
)

func TestSerialMutationOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		log []string
	)
	record := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}

	step := &schema.Object{Name: "Step", Fields: []*schema.Field{{
		Name:  "after",
		Type:  schema.String,
		Async: true,
		Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			name := rc.Source.(string)
			record(name + ".after")
			return name, nil
		}),
	}}}
	mutation := &schema.Object{Name: "Mutation", Fields: []*schema.Field{{
		Name:      "step",
		Type:      step,
		Async:     true,
		Arguments: []*schema.Argument{{Name: "name", Type: schema.NonNullOf(schema.String)}},
		Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			name := rc.Arg("name").(string)
			// The first step is the slowest one.
			if name == "a" {
				time.Sleep(20 * time.Millisecond)
			}
			record(name)
			return name, nil
		}),
	}}}
	query := &schema.Object{Name: "Query", Fields: []*schema.Field{{Name: "ok", Type: schema.Boolean}}}

	e, err := New(schema.NewSchema(query).SetMutation(mutation))
	require.NoError(t, err)
	res := execute(t, e, `mutation {
  first: step(name: "a") { after }
  second: step(name: "b") { after }
  third: step(name: "c") { after }
}`, nil)

	require.Empty(t, res.Errors)
	require.Equal(t, []string{"a", "a.after", "b", "b.after", "c", "c.after"}, log)
	require.Equal(t, `{"first":{"after":"a"},"second":{"after":"b"},"third":{"after":"c"}}`, marshal(t, res.Data))
}

// asyncFields builds a query root with n async fields f0..fn-1 all using
// resolve.
func asyncFields(n int, resolve schema.ResolverFunc) *schema.Object {
	query := &schema.Object{Name: "Query"}
	for i := 0; i < n; i++ {
		query.Fields = append(query.Fields, &schema.Field{
			Name:     fmt.Sprintf("f%d", i),
			Type:     schema.Int,
			Async:    true,
			Resolver: resolve,
		})
	}
	return query
}

func TestParallelRunsAsyncFieldsConcurrently(t *testing.T) {
	const n = 4
	var arrived sync.WaitGroup
	arrived.Add(n)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	query := asyncFields(n, func(rc *schema.ResolveContext) (any, error) {
		arrived.Done()
		select {
		case <-all:
			return 1, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("fields did not run concurrently")
		}
	})
	e, err := New(schema.NewSchema(query))
	require.NoError(t, err)

	res := execute(t, e, `{ f0 f1 f2 f3 }`, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, `{"f0":1,"f1":1,"f2":1,"f3":1}`, marshal(t, res.Data))
}

func TestParallelHonorsMaxParallelExecutionCount(t *testing.T) {
	var inflight, peak atomic.Int64
	query := asyncFields(6, func(rc *schema.ResolveContext) (any, error) {
		now := inflight.Inc()
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Dec()
		return 1, nil
	})
	e, err := New(schema.NewSchema(query), WithMaxParallelExecutionCount(2))
	require.NoError(t, err)

	res := execute(t, e, `{ f0 f1 f2 f3 f4 f5 }`, nil)
	require.Empty(t, res.Errors)
	require.LessOrEqual(t, peak.Load(), int64(2))
	require.GreaterOrEqual(t, peak.Load(), int64(1))
}

type loaderKey struct{}

// userSchema resolves User.name through a data loader found in the user
// context. User.best is a plain field that returns another user id.
func userSchema() *schema.Schema {
	user := &schema.Object{Name: "User"}
	user.Fields = []*schema.Field{
		{Name: "name", Type: schema.String, Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			l := rc.UserContext.(map[any]any)[loaderKey{}].(*dataloader.Loader[int, string])
			return l.Load(rc.Source.(int)), nil
		})},
		{Name: "best", Type: user, Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			return rc.Source.(int) + 10, nil
		})},
	}
	query := &schema.Object{Name: "Query", Fields: []*schema.Field{{
		Name:  "users",
		Type:  schema.ListOf(user),
		Async: true,
		Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
			return []int{1, 2, 3}, nil
		}),
	}}}
	return schema.NewSchema(query)
}

func TestDeferredResultsAreBatched(t *testing.T) {
	for _, tc := range []struct {
		name      string
		strategy  Strategy
		wantBatch []int
	}{
		{name: "parallel", strategy: ParallelStrategy{}, wantBatch: []int{1, 2, 3, 11, 12, 13}},
		{name: "serial", strategy: SerialStrategy{}, wantBatch: []int{1, 11, 2, 12, 3, 13}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var batches [][]int
			loader := dataloader.New(func(_ context.Context, keys []int) ([]string, []error) {
				batches = append(batches, append([]int(nil), keys...))
				out := make([]string, len(keys))
				for i, k := range keys {
					out[i] = fmt.Sprintf("user%d", k)
				}
				return out, nil
			})

			e, err := New(userSchema(), WithStrategy(language.Query, tc.strategy))
			require.NoError(t, err)
			res, err := e.Execute(context.Background(), Request{
				Query:       `{ users { name best { name } } }`,
				UserContext: map[any]any{loaderKey{}: loader},
			})
			require.NoError(t, err)
			require.Empty(t, res.Errors)
			require.Equal(t, [][]int{tc.wantBatch}, batches)
			require.Equal(t,
				`{"users":[{"name":"user1","best":{"name":"user11"}},{"name":"user2","best":{"name":"user12"}},{"name":"user3","best":{"name":"user13"}}]}`,
				marshal(t, res.Data))
		})
	}
}

type failingDeferred struct{}

func (failingDeferred) GetResult(context.Context) (any, error) { return nil, errors.New("deferred failed") }

func TestDeferredError(t *testing.T) {
	query := &schema.Object{Name: "Query", Fields: []*schema.Field{{
		Name: "x",
		Type: schema.String,
		Resolver: schema.ResolverFunc(func(*schema.ResolveContext) (any, error) {
			return failingDeferred{}, nil
		}),
	}}}
	e, err := New(schema.NewSchema(query))
	require.NoError(t, err)
	res := execute(t, e, `{ x }`, nil)
	require.Equal(t, `{"x":null}`, marshal(t, res.Data))
	require.Equal(t, []string{"deferred failed"}, errorMessages(res))
}

func blockingSchema() *schema.Schema {
	query := asyncFields(1, func(rc *schema.ResolveContext) (any, error) {
		<-rc.Context.Done()
		return nil, rc.Context.Err()
	})
	return schema.NewSchema(query)
}

func TestTimeout(t *testing.T) {
	t.Run("returned as error result", func(t *testing.T) {
		e, err := New(blockingSchema(), WithTimeout(10*time.Millisecond, ReturnTimeoutError))
		require.NoError(t, err)
		res := execute(t, e, `{ f0 }`, nil)
		require.False(t, res.Executed)
		require.Len(t, res.Errors, 1)
		require.Equal(t, CodeTimeout, res.Errors[0].Code)
	})

	t.Run("thrown", func(t *testing.T) {
		e, err := New(blockingSchema(), WithTimeout(10*time.Millisecond, ThrowTimeoutError))
		require.NoError(t, err)
		res, err := e.Execute(context.Background(), Request{Query: `{ f0 }`})
		require.Nil(t, res)
		require.ErrorIs(t, err, ErrTimeout)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestCanceled(t *testing.T) {
	e, err := New(blockingSchema())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res, err := e.Execute(ctx, Request{Query: `{ f0 }`})
	require.Nil(t, res)
	require.ErrorIs(t, err, ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelDuringLastField(t *testing.T) {
	for _, tc := range []struct {
		name     string
		strategy Strategy
	}{
		{name: "parallel", strategy: ParallelStrategy{}},
		{name: "serial", strategy: SerialStrategy{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			query := &schema.Object{Name: "Query", Fields: []*schema.Field{
				{Name: "a", Type: schema.String, Resolver: schema.ResolverFunc(func(*schema.ResolveContext) (any, error) {
					return "a", nil
				})},
				{Name: "last", Type: schema.String, Resolver: schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
					cancel()
					return nil, rc.Context.Err()
				})},
			}}
			e, err := New(schema.NewSchema(query), WithStrategy(language.Query, tc.strategy))
			require.NoError(t, err)

			res, err := e.Execute(ctx, Request{Query: `{ a last }`})
			require.Nil(t, res)
			require.ErrorIs(t, err, ErrCanceled)
		})
	}
}

type panickingDeferred struct{}

func (panickingDeferred) GetResult(context.Context) (any, error) { panic("batch exploded") }

func TestPanicsOutsideResolversAreContained(t *testing.T) {
	pet := &schema.Interface{
		Name:        "Pet",
		Fields:      []*schema.Field{{Name: "name", Type: schema.String}},
		ResolveType: func(any) *schema.Object { panic("unknown pet") },
	}
	dog := &schema.Object{Name: "Dog", Interfaces: []schema.Type{pet}, Fields: []*schema.Field{{Name: "name", Type: schema.String}}}
	shout := &schema.Scalar{Name: "Shout", Serialize: func(any) (any, bool) { panic("too loud") }}
	constant := func(v any) schema.FieldResolver {
		return schema.ResolverFunc(func(*schema.ResolveContext) (any, error) { return v, nil })
	}
	query := &schema.Object{Name: "Query", Fields: []*schema.Field{
		{Name: "deferred", Type: schema.String, Resolver: constant(panickingDeferred{})},
		{Name: "pet", Type: pet, Async: true, Resolver: constant(map[string]any{"name": "Rex"})},
		{Name: "shout", Type: shout, Async: true, Resolver: constant("hi")},
		{Name: "ok", Type: schema.String, Resolver: constant("ok")},
	}}

	for _, tc := range []struct {
		name     string
		strategy Strategy
	}{
		{name: "parallel", strategy: ParallelStrategy{}},
		{name: "serial", strategy: SerialStrategy{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e, err := New(schema.NewSchema(query).AddType(dog), WithStrategy(language.Query, tc.strategy))
			require.NoError(t, err)
			res := execute(t, e, `{ deferred pet { name } shout ok }`, nil)
			require.Equal(t, `{"deferred":null,"pet":null,"shout":null,"ok":"ok"}`, marshal(t, res.Data))
			require.ElementsMatch(t, []string{
				"resolver for field 'deferred' panicked: batch exploded",
				"resolver for field 'pet' panicked: unknown pet",
				"resolver for field 'shout' panicked: too loud",
			}, errorMessages(res))
		})
	}
}
