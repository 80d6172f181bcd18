package executor

import (
	"context"

	"github.com/emirpasic/gods/stacks/arraystack"
)

// Strategy walks the node tree of one operation.
type Strategy interface {
	Execute(ctx context.Context, ec *ExecutionContext, root *RootNode) error
}

// SerialStrategy resolves one node at a time, depth first, in selection
// order. Each root field completes with its whole subtree before the next
// root field starts.
type SerialStrategy struct{}

func (SerialStrategy) Execute(ctx context.Context, ec *ExecutionContext, root *RootNode) error {
	return runSerial(ctx, ec, root.children)
}

func runSerial(ctx context.Context, ec *ExecutionContext, start []Node) error {
	stack := arraystack.New()
	pushReversed(stack, start)

	parked := ec.rentList()
	defer ec.releaseList(parked)
	for {
		for !stack.Empty() {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, _ := stack.Pop()
			n := v.(Node)
			if ec.executeNode(n) {
				*parked = append(*parked, n)
				continue
			}
			pushChildren(ec, stack, n)
		}
		if len(*parked) == 0 {
			return nil
		}

		batch := append([]Node(nil), *parked...)
		*parked = (*parked)[:0]
		for _, n := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			ec.drainDeferred(n)
		}
		for i := len(batch) - 1; i >= 0; i-- {
			pushChildren(ec, stack, batch[i])
		}
	}
}

func pushChildren(ec *ExecutionContext, stack *arraystack.Stack, n Node) {
	children := ec.rentList()
	*children = pendingChildren(n, *children)
	pushReversed(stack, *children)
	ec.releaseList(children)
}

// pushReversed pushes nodes so that the first one is popped first.
func pushReversed(stack *arraystack.Stack, nodes []Node) {
	for i := len(nodes) - 1; i >= 0; i-- {
		stack.Push(nodes[i])
	}
}
