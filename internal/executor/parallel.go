package executor

import (
	"context"

	"github.com/phf/go-queue/queue"
	"golang.org/x/sync/errgroup"
)

// ParallelStrategy resolves the tree level by level. Fields marked Async
// run concurrently, at most MaxParallelExecutionCount at a time, and every
// level waits for its async fields before the next level starts. All other
// fields run inline on the calling goroutine.
type ParallelStrategy struct{}

func (ParallelStrategy) Execute(ctx context.Context, ec *ExecutionContext, root *RootNode) error {
	return runParallel(ctx, ec, root.children)
}

func runParallel(ctx context.Context, ec *ExecutionContext, start []Node) error {
	q := queue.New()
	for _, n := range start {
		q.PushBack(n)
	}

	async := ec.rentList()
	defer ec.releaseList(async)
	parked := ec.rentList()
	defer ec.releaseList(parked)

	for q.Len() > 0 {
		*async = (*async)[:0]
		*parked = (*parked)[:0]

		for q.Len() > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := q.PopFront().(Node)
			if n.FieldDefinition().Async {
				*async = append(*async, n)
				continue
			}
			if ec.executeNode(n) {
				*parked = append(*parked, n)
				continue
			}
			enqueueChildren(ec, q, n)
		}

		if len(*async) > 0 {
			if err := runAsync(ctx, ec, *async); err != nil {
				return err
			}
			for _, n := range *async {
				if n.base().deferred != nil {
					*parked = append(*parked, n)
					continue
				}
				enqueueChildren(ec, q, n)
			}
		}

		for _, n := range *parked {
			if err := ctx.Err(); err != nil {
				return err
			}
			ec.drainDeferred(n)
			enqueueChildren(ec, q, n)
		}
	}
	return nil
}

// runAsync executes nodes concurrently and waits for all of them.
func runAsync(ctx context.Context, ec *ExecutionContext, nodes []Node) error {
	var g errgroup.Group
	g.SetLimit(ec.options.MaxParallelExecutionCount)
	for _, n := range nodes {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ec.executeNode(n)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func enqueueChildren(ec *ExecutionContext, q *queue.Queue, n Node) {
	children := ec.rentList()
	*children = pendingChildren(n, *children)
	for _, c := range *children {
		q.PushBack(c)
	}
	ec.releaseList(children)
}
