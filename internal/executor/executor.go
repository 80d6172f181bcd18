package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/hanpama/graphexec/internal/eventbus"
	"github.com/hanpama/graphexec/internal/events"
	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
	"github.com/hanpama/graphexec/internal/validation"
)

var (
	// ErrCanceled is returned by Execute when the context was canceled.
	ErrCanceled = fmt.Errorf("executor: execution canceled: %w", context.Canceled)
	// ErrTimeout is returned by Execute when the timeout elapsed and the
	// timeout action is ThrowTimeoutError.
	ErrTimeout = fmt.Errorf("executor: execution timed out: %w", context.DeadlineExceeded)
)

// TimeoutAction selects how an elapsed timeout is reported.
type TimeoutAction int

const (
	// ReturnTimeoutError reports a TIMEOUT error in the result.
	ReturnTimeoutError TimeoutAction = iota
	// ThrowTimeoutError makes Execute return ErrTimeout.
	ThrowTimeoutError
)

const defaultMaxParallelExecutionCount = 64

// Listener observes every execution.
type Listener interface {
	BeforeExecution(ctx context.Context, req *Request)
	AfterExecution(ctx context.Context, req *Request, result *ExecutionResult)
}

// Options configure an Executor.
type Options struct {
	Logger *zap.Logger
	// MaxParallelExecutionCount bounds concurrently running async
	// resolvers. Zero or less removes the bound.
	MaxParallelExecutionCount int
	// Timeout bounds query and mutation execution. Subscriptions are
	// bounded by the caller's context only.
	Timeout       time.Duration
	TimeoutAction TimeoutAction
	// UnhandledErrorDelegate may replace errors returned by resolvers
	// before they are added to the result.
	UnhandledErrorDelegate func(ctx context.Context, err error) error
	// MaskUnhandledErrors hides resolver error messages behind a generic
	// message naming the field.
	MaskUnhandledErrors bool
	EnableIntrospection bool
	ValidateDocuments   bool
	Listeners           []Listener
	Strategies          map[language.Operation]Strategy
}

// Option configures an Executor.
type Option func(*Options)

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithMaxParallelExecutionCount(n int) Option {
	return func(o *Options) { o.MaxParallelExecutionCount = n }
}

func WithTimeout(d time.Duration, action TimeoutAction) Option {
	return func(o *Options) {
		o.Timeout = d
		o.TimeoutAction = action
	}
}

func WithUnhandledErrorDelegate(fn func(ctx context.Context, err error) error) Option {
	return func(o *Options) { o.UnhandledErrorDelegate = fn }
}

func WithMaskUnhandledErrors(mask bool) Option {
	return func(o *Options) { o.MaskUnhandledErrors = mask }
}

func WithIntrospection(enabled bool) Option {
	return func(o *Options) { o.EnableIntrospection = enabled }
}

// WithValidation turns document validation on or off. It is on by default.
func WithValidation(enabled bool) Option {
	return func(o *Options) { o.ValidateDocuments = enabled }
}

func WithListener(l Listener) Option {
	return func(o *Options) { o.Listeners = append(o.Listeners, l) }
}

// WithStrategy replaces the strategy used for one operation type.
func WithStrategy(op language.Operation, s Strategy) Option {
	return func(o *Options) { o.Strategies[op] = s }
}

func defaultOptions() Options {
	return Options{
		Logger:                    zap.NewNop(),
		MaxParallelExecutionCount: defaultMaxParallelExecutionCount,
		EnableIntrospection:       true,
		ValidateDocuments:         true,
		Strategies: map[language.Operation]Strategy{
			language.Query:        ParallelStrategy{},
			language.Mutation:     SerialStrategy{},
			language.Subscription: SubscriptionStrategy{},
		},
	}
}

// Request is one operation to execute. Document, when set, is used
// instead of parsing Query.
type Request struct {
	Query         string
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	RootValue     any
	UserContext   any
	// Validated marks a Document already validated against the schema.
	Validated bool
}

// Executor executes requests against one schema.
type Executor struct {
	schema    *schema.Schema
	opts      Options
	validator *validation.Validator
}

// New initializes s if needed and prepares an executor for it.
func New(s *schema.Schema, opts ...Option) (*Executor, error) {
	if s == nil {
		return nil, errors.New("executor: schema is nil")
	}
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MaxParallelExecutionCount <= 0 {
		o.MaxParallelExecutionCount = -1
	}
	e := &Executor{schema: s, opts: o}
	if o.ValidateDocuments {
		v, err := validation.New(s)
		if err != nil {
			return nil, err
		}
		e.validator = v
	}
	return e, nil
}

func (e *Executor) Schema() *schema.Schema { return e.schema }

// Validator returns the document validator, or nil when validation is off.
func (e *Executor) Validator() *validation.Validator { return e.validator }

// Execute runs req. Request errors and field errors are reported in the
// result. The returned error is ErrCanceled, ErrTimeout, or an error of
// the strategy itself.
func (e *Executor) Execute(ctx context.Context, req Request) (*ExecutionResult, error) {
	start := time.Now()
	for _, l := range e.opts.Listeners {
		l.BeforeExecution(ctx, &req)
	}
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName})

	result, info, err := e.run(ctx, &req)

	finish := events.GraphQLFinish{
		Query:          req.Query,
		OperationName:  req.OperationName,
		OperationType:  info.operationType,
		ResolvedFields: info.resolved,
		Duration:       time.Since(start),
	}
	if err != nil {
		finish.Errors = []error{err}
		eventbus.Publish(ctx, finish)
		e.opts.Logger.Debug("execution aborted", zap.String("operation", req.OperationName), zap.Error(err))
		return nil, err
	}
	for _, re := range result.Errors {
		finish.Errors = append(finish.Errors, re)
	}
	eventbus.Publish(ctx, finish)

	for _, l := range e.opts.Listeners {
		l.AfterExecution(ctx, &req, result)
	}
	e.opts.Logger.Debug("operation executed",
		zap.String("operation", req.OperationName),
		zap.String("type", info.operationType),
		zap.Int64("resolved", info.resolved),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", finish.Duration))
	return result, nil
}

type runInfo struct {
	operationType string
	resolved      int64
}

func (e *Executor) run(ctx context.Context, req *Request) (*ExecutionResult, runInfo, error) {
	var info runInfo

	doc := req.Document
	if doc == nil {
		parsed, err := language.ParseQuery(req.Query)
		if err != nil {
			return errorResult(fromParserError(err, CodeSyntax)...), info, nil
		}
		doc = parsed
	}

	op, opErr := selectOperation(doc, req.OperationName)
	if opErr != nil {
		return errorResult(opErr), info, nil
	}
	info.operationType = string(op.Operation)

	if e.validator != nil && !(req.Document != nil && req.Validated) {
		if errs := e.validator.Validate(doc); len(errs) > 0 {
			out := make([]*ExecutionError, 0, len(errs))
			for _, ve := range errs {
				out = append(out, fromGQLError(ve, CodeValidation))
			}
			return errorResult(out...), info, nil
		}
	}

	rootType := e.schema.RootType(string(op.Operation))
	if rootType == nil {
		return errorResult(newCodedError(CodeInvalidOp, "Schema is not configured to execute %s operation.", op.Operation)), info, nil
	}

	vars, verr := GetVariableValues(e.schema, op, req.Variables)
	if verr != nil {
		return errorResult(verr), info, nil
	}

	execCtx := ctx
	if e.opts.Timeout > 0 && op.Operation != language.Subscription {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	ec := newExecutionContext(execCtx, &e.opts, e.schema, doc, op, vars, *req)
	root := newRootNode(ec, rootType, op.SelectionSet, req.RootValue)
	if !e.opts.EnableIntrospection {
		if err := introspectionSelected(root); err != nil {
			return errorResult(err), info, nil
		}
	}

	strategy := e.opts.Strategies[op.Operation]
	err := strategy.Execute(execCtx, ec, root)
	if err == nil && op.Operation != language.Subscription {
		// A signal raised while the last resolvers ran leaves nothing for
		// the strategy to observe.
		err = execCtx.Err()
	}
	info.resolved = ec.ResolvedFields()
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			if e.opts.TimeoutAction == ThrowTimeoutError {
				return nil, info, ErrTimeout
			}
			return errorResult(newCodedError(CodeTimeout, "Operation timed out.")), info, nil
		case errors.Is(err, context.Canceled):
			return nil, info, ErrCanceled
		}
		return nil, info, err
	}

	result := &ExecutionResult{Errors: ec.Errors.List(), Executed: true}
	if op.Operation == language.Subscription {
		result.Streams = ec.streams
	} else {
		result.Data = root.ToValue()
	}
	return result, info, nil
}

func selectOperation(doc *language.QueryDocument, name string) (*language.OperationDefinition, *ExecutionError) {
	if op := language.OperationByName(doc, name); op != nil {
		return op, nil
	}
	switch {
	case name != "":
		return nil, newCodedError(CodeInvalidOp, "Unknown operation named '%s'.", name)
	case len(doc.Operations) > 1:
		return nil, newCodedError(CodeInvalidOp, "Must provide operation name if query contains multiple operations.")
	}
	return nil, newCodedError(CodeInvalidOp, "Document does not contain any operation.")
}

func introspectionSelected(root *RootNode) *ExecutionError {
	for _, child := range root.children {
		switch child.FieldDefinition().Name {
		case "__schema", "__type":
			e := newCodedError(CodeValidation, "GraphQL introspection is not allowed.")
			if f := child.Field(); f.Position != nil {
				e.AddLocation(f.Position.Line, f.Position.Column)
			}
			return e
		}
	}
	return nil
}

func errorResult(errs ...*ExecutionError) *ExecutionResult {
	return &ExecutionResult{Errors: errs}
}

func fromParserError(err error, code string) []*ExecutionError {
	var list gqlerror.List
	var single *gqlerror.Error
	switch {
	case errors.As(err, &list):
	case errors.As(err, &single):
		list = gqlerror.List{single}
	default:
		return []*ExecutionError{newCodedError(code, "%s", err.Error())}
	}
	out := make([]*ExecutionError, len(list))
	for i, ge := range list {
		out[i] = fromGQLError(ge, code)
	}
	return out
}

func fromGQLError(ge *gqlerror.Error, code string) *ExecutionError {
	e := newCodedError(code, "%s", ge.Message)
	e.err = ge
	for _, loc := range ge.Locations {
		e.AddLocation(loc.Line, loc.Column)
	}
	return e
}
