package executor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	schema "github.com/hanpama/graphexec/internal/schema"
)

// SubscriptionStrategy subscribes to the event stream of every root field.
// Each event runs the field's selection with Event as the strategy for the
// subtree. Streams close when the source closes or ctx is done.
type SubscriptionStrategy struct {
	// Event executes the selection below each event. ParallelStrategy is
	// used when nil.
	Event Strategy
}

func (s SubscriptionStrategy) Execute(ctx context.Context, ec *ExecutionContext, root *RootNode) error {
	// streamCtx ends the sources and pumps already started when a later
	// root field fails to subscribe.
	streamCtx, cancel := context.WithCancel(ctx)
	var pumps sync.WaitGroup
	for _, field := range root.children {
		if err := ctx.Err(); err != nil {
			cancel()
			return err
		}
		stream, err := s.subscribe(streamCtx, ec, field, &pumps)
		if err != nil {
			ec.fail(field, err)
			continue
		}
		ec.addStream(field.base().Name(), stream)
	}
	if ec.Errors.Len() > 0 {
		// A failed subscription yields a single error result and no streams.
		cancel()
		ec.streams = nil
		return nil
	}
	go func() {
		pumps.Wait()
		cancel()
	}()
	return nil
}

func (s SubscriptionStrategy) subscribe(ctx context.Context, ec *ExecutionContext, field Node, pumps *sync.WaitGroup) (<-chan *ExecutionResult, error) {
	def := field.FieldDefinition()
	if def.Subscriber == nil {
		return nil, newCodedError(CodeInvalidOp, "Field '%s' is not a subscription field.", def.Name)
	}
	rc, err := ec.resolveContext(field)
	if err != nil {
		return nil, err
	}
	rc.Context = ctx
	events, err := subscribe(def.Subscriber, rc)
	if err != nil {
		return nil, err
	}
	out := make(chan *ExecutionResult)
	pumps.Add(1)
	go func() {
		defer pumps.Done()
		s.pump(ctx, ec, field, events, out)
	}()
	return out, nil
}

func subscribe(r schema.EventStreamResolver, rc *schema.ResolveContext) (events <-chan any, err error) {
	defer func() {
		if p := recover(); p != nil {
			events, err = nil, fmt.Errorf("subscriber for field '%s' panicked: %v", rc.FieldName, p)
		}
	}()
	return r.Subscribe(rc)
}

func (s SubscriptionStrategy) pump(ctx context.Context, ec *ExecutionContext, field Node, events <-chan any, out chan<- *ExecutionResult) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			result, err := s.executeEvent(ctx, ec, field, event)
			if err != nil {
				ec.Logger.Debug("subscription event aborted", zap.Error(err))
				return
			}
			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// executeEvent builds a fresh tree for one event. The field's resolver, if
// any, maps the event to the field value; otherwise the event is the value.
func (s SubscriptionStrategy) executeEvent(ctx context.Context, parent *ExecutionContext, field Node, event any) (*ExecutionResult, error) {
	ec := parent.forEvent()
	rootType := parent.Schema.Subscription
	root := &RootNode{ObjectNode{baseNode: baseNode{typ: rootType, index: -1}, objectType: rootType}}
	root.setResult(ec.RootValue)

	def := field.FieldDefinition()
	node := BuildExecutionNode(root, def.Type, field.Fields(), def, -1)
	root.children = []Node{node}

	value := event
	if def.Resolver != nil {
		rc, err := ec.resolveContext(node)
		if err != nil {
			ec.fail(node, err)
			return ec.result(root), nil
		}
		rc.Source = event
		if value, err = ec.callResolver(def.Resolver, rc); err != nil {
			ec.fail(node, err)
			return ec.result(root), nil
		}
	}
	ec.completeField(node, value)

	strategy := s.Event
	if strategy == nil {
		strategy = ParallelStrategy{}
	}
	sub := &RootNode{ObjectNode{baseNode: baseNode{typ: rootType, index: -1}, objectType: rootType}}
	sub.children = pendingChildren(node, nil)
	if err := strategy.Execute(ctx, ec, sub); err != nil {
		return nil, err
	}
	return ec.result(root), nil
}

func (ec *ExecutionContext) result(root *RootNode) *ExecutionResult {
	return &ExecutionResult{
		Data:     root.ToValue(),
		Errors:   ec.Errors.List(),
		Executed: true,
	}
}
