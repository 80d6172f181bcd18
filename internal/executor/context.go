package executor

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
)

// ExecutionContext is the state of one operation shared by every node.
type ExecutionContext struct {
	Context     context.Context
	Schema      *schema.Schema
	Document    *language.QueryDocument
	Operation   *language.OperationDefinition
	Variables   map[string]any
	RootValue   any
	UserContext any
	Errors      *ExecutionErrors
	Logger      *zap.Logger

	options  *Options
	resolved atomic.Int64
	lists    sync.Pool

	streamsMu sync.Mutex
	streams   map[string]<-chan *ExecutionResult
}

func newExecutionContext(ctx context.Context, opts *Options, s *schema.Schema, doc *language.QueryDocument, op *language.OperationDefinition, vars map[string]any, req Request) *ExecutionContext {
	ec := &ExecutionContext{
		Context:     ctx,
		Schema:      s,
		Document:    doc,
		Operation:   op,
		Variables:   vars,
		RootValue:   req.RootValue,
		UserContext: req.UserContext,
		Errors:      &ExecutionErrors{},
		Logger:      opts.Logger,
		options:     opts,
	}
	ec.lists.New = func() any {
		list := make([]Node, 0, 16)
		return &list
	}
	return ec
}

// forEvent derives the context of one subscription event. It shares
// everything but the error list and counters.
func (ec *ExecutionContext) forEvent() *ExecutionContext {
	return newExecutionContext(ec.Context, ec.options, ec.Schema, ec.Document, ec.Operation, ec.Variables, Request{
		RootValue:   ec.RootValue,
		UserContext: ec.UserContext,
	})
}

// ResolvedFields returns how many resolvers ran so far.
func (ec *ExecutionContext) ResolvedFields() int64 { return ec.resolved.Load() }

// rentList hands out an empty node slice from the pool.
func (ec *ExecutionContext) rentList() *[]Node {
	list := ec.lists.Get().(*[]Node)
	*list = (*list)[:0]
	return list
}

func (ec *ExecutionContext) releaseList(list *[]Node) {
	clear(*list)
	*list = (*list)[:0]
	ec.lists.Put(list)
}

func (ec *ExecutionContext) addStream(key string, stream <-chan *ExecutionResult) {
	ec.streamsMu.Lock()
	defer ec.streamsMu.Unlock()
	if ec.streams == nil {
		ec.streams = make(map[string]<-chan *ExecutionResult)
	}
	ec.streams[key] = stream
}
