package executor

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/hanpama/graphexec/internal/eventbus"
	"github.com/hanpama/graphexec/internal/events"
	schema "github.com/hanpama/graphexec/internal/schema"
)

// executeNode runs the resolver of a field node and completes its value.
// It reports true when the resolver returned a schema.Deferred; the node is
// then parked until drainDeferred is called.
func (ec *ExecutionContext) executeNode(n Node) bool {
	b := n.base()
	if b.resultSet {
		return false
	}
	start := time.Now()
	rc, err := ec.resolveContext(n)
	if err != nil {
		ec.fail(n, err)
		ec.fieldResolved(n, start, err)
		return false
	}
	resolver := b.def.Resolver
	if resolver == nil {
		resolver = schema.DefaultResolver
	}
	value, err := ec.callResolver(resolver, rc)
	if err != nil {
		ec.fail(n, err)
		ec.fieldResolved(n, start, err)
		return false
	}
	if d, ok := value.(schema.Deferred); ok {
		b.deferred = d
		return true
	}
	ec.completeField(n, value)
	ec.fieldResolved(n, start, nil)
	return false
}

// drainDeferred waits for the parked result of n and completes it.
func (ec *ExecutionContext) drainDeferred(n Node) {
	b := n.base()
	start := time.Now()
	value := any(b.deferred)
	b.deferred = nil
	for {
		d, ok := value.(schema.Deferred)
		if !ok {
			break
		}
		var err error
		if value, err = ec.getResult(b.def.Name, d); err != nil {
			ec.fail(n, err)
			ec.fieldResolved(n, start, err)
			return
		}
	}
	ec.completeField(n, value)
	ec.fieldResolved(n, start, nil)
}

func (ec *ExecutionContext) completeField(n Node, value any) {
	if err := ec.safeComplete(n, value); err != nil {
		ec.fail(n, err)
	}
}

// safeComplete runs completeValue, which calls ResolveType, IsTypeOf and
// Serialize functions of the schema.
func (ec *ExecutionContext) safeComplete(n Node, value any) (err error) {
	defer ec.recoverPanic(n.FieldDefinition().Name, &err)
	return ec.completeValue(n, value)
}

func (ec *ExecutionContext) callResolver(r schema.FieldResolver, rc *schema.ResolveContext) (value any, err error) {
	defer ec.recoverPanic(rc.FieldName, &err)
	return r.Resolve(rc)
}

func (ec *ExecutionContext) getResult(field string, d schema.Deferred) (value any, err error) {
	defer ec.recoverPanic(field, &err)
	return d.GetResult(ec.Context)
}

// recoverPanic turns a panic in user code into a field error. It must be
// deferred directly.
func (ec *ExecutionContext) recoverPanic(field string, err *error) {
	p := recover()
	if p == nil {
		return
	}
	ec.Logger.Error("resolver panicked",
		zap.String("field", field),
		zap.Any("panic", p),
		zap.Stack("stack"))
	*err = fmt.Errorf("resolver for field '%s' panicked: %v", field, p)
}

type objectParent interface {
	ObjectType() *schema.Object
}

func (ec *ExecutionContext) resolveContext(n Node) (*schema.ResolveContext, error) {
	b := n.base()
	field := n.Field()
	args, err := GetArgumentValues(b.def.Arguments, field.Arguments, ec.Variables)
	if err != nil {
		e := newCodedError(CodeInvalidValue, "%s", err.Error())
		e.err = err
		return nil, e
	}
	var parentType *schema.Object
	if p, ok := b.parent.(objectParent); ok {
		parentType = p.ObjectType()
	}
	rc := &schema.ResolveContext{
		Context:         ec.Context,
		FieldName:       b.def.Name,
		FieldAST:        field,
		FieldASTs:       b.fields,
		FieldDefinition: b.def,
		ReturnType:      b.typ,
		ParentType:      parentType,
		Arguments:       args,
		Source:          b.parent.Result(),
		Schema:          ec.Schema,
		Document:        ec.Document,
		Operation:       ec.Operation,
		Variables:       ec.Variables,
		Path:            []any(n.Path()),
		UserContext:     ec.UserContext,
	}
	if obj, ok := schema.Named(b.typ).(*schema.Object); ok {
		rc.SubFields = ec.CollectFields(obj, mergeSelectionSets(b.fields)).Keys()
	}
	return rc, nil
}

// completeValue stores value in n, checking nullability, resolving
// abstract types, serializing leaves and creating child nodes.
func (ec *ExecutionContext) completeValue(n Node, value any) error {
	b := n.base()
	if isNullish(value) {
		return ec.completeNull(n)
	}
	switch node := n.(type) {
	case *ValueNode:
		out, err := serializeLeaf(schema.Named(b.typ), value)
		if err != nil {
			return err
		}
		if out == nil {
			return ec.completeNull(n)
		}
		node.setResult(out)

	case *ObjectNode:
		obj, err := ec.resolveObjectType(node, value)
		if err != nil {
			return err
		}
		node.objectType = obj
		node.setResult(value)
		node.children = ec.subFieldNodes(node, obj, mergeSelectionSets(node.fields))

	case *ArrayNode:
		return ec.completeList(node, value)
	}
	return nil
}

func (ec *ExecutionContext) completeNull(n Node) error {
	n.base().setResult(nil)
	if schema.IsNonNull(n.GraphType()) {
		return newCodedError(CodeNonNull, "Cannot return null for non-nullable field %s.", n.Path())
	}
	return nil
}

// completeList creates one item node per element and completes each of
// them. Item failures are recorded on the item.
func (ec *ExecutionContext) completeList(node *ArrayNode, value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return newCodedError(CodeInvalidType, "Expected a list for field '%s', got %T.", node.def.Name, value)
	}
	itemType := schema.Nullable(node.typ).(*schema.List).OfType
	node.setResult(value)
	node.items = make([]Node, rv.Len())
	for i := range node.items {
		item := BuildExecutionNode(node, itemType, node.fields, node.def, i)
		node.items[i] = item
		if err := ec.completeValue(item, rv.Index(i).Interface()); err != nil {
			ec.fail(item, err)
		}
	}
	return nil
}

// serializeLeaf serializes value, retrying with the pointed-to value for
// pointers the leaf type does not accept as is.
func serializeLeaf(t schema.NamedType, value any) (any, error) {
	var serialize func(any) (any, bool)
	switch leaf := t.(type) {
	case *schema.Scalar:
		serialize = leaf.Serialize
	case *schema.Enum:
		serialize = leaf.Serialize
	default:
		return nil, newCodedError(CodeSerialization, "Unable to serialize '%v' as '%s'.", value, t.TypeName())
	}
	out, ok := serialize(value)
	for rv := reflect.ValueOf(value); !ok && rv.Kind() == reflect.Pointer && !rv.IsNil(); rv = rv.Elem() {
		out, ok = serialize(rv.Elem().Interface())
	}
	if !ok {
		return nil, newCodedError(CodeSerialization, "Unable to serialize '%v' as '%s'.", value, t.TypeName())
	}
	return out, nil
}

// resolveObjectType finds the concrete object type of value. An explicit
// ResolveType on the abstract type wins; otherwise the IsTypeOf predicates
// of the possible types are probed in registration order.
func (ec *ExecutionContext) resolveObjectType(node *ObjectNode, value any) (*schema.Object, error) {
	var (
		abstract    schema.NamedType
		resolveType func(any) *schema.Object
	)
	switch t := schema.Named(node.typ).(type) {
	case *schema.Object:
		if t.IsTypeOf != nil && !t.IsTypeOf(value) {
			return nil, newCodedError(CodeInvalidType, "Expected value of type '%s' for field '%s', got %T.", t.Name, node.Path(), value)
		}
		return t, nil
	case *schema.Interface:
		abstract, resolveType = t, t.ResolveType
	case *schema.Union:
		abstract, resolveType = t, t.ResolveType
	default:
		return nil, newCodedError(CodeInvalidType, "Type '%s' is not an output object type.", node.typ)
	}

	var obj *schema.Object
	if resolveType != nil {
		obj = resolveType(value)
		if obj == nil {
			return nil, newCodedError(CodeInvalidType, "Abstract type '%s' must resolve to an object type at runtime for field '%s'. Received null.", abstract.TypeName(), node.Path())
		}
	} else {
		for _, pt := range ec.Schema.PossibleTypes(abstract) {
			if pt.IsTypeOf != nil && pt.IsTypeOf(value) {
				obj = pt
				break
			}
		}
		if obj == nil {
			return nil, newCodedError(CodeInvalidType, "Abstract type '%s' must resolve to an object type at runtime for field '%s' with value of type %T.", abstract.TypeName(), node.Path(), value)
		}
	}
	if !ec.Schema.IsPossibleType(abstract, obj) {
		return nil, newCodedError(CodeInvalidType, "Runtime object type '%s' is not a possible type for '%s'.", obj.Name, abstract.TypeName())
	}
	if resolveType != nil && obj.IsTypeOf != nil && !obj.IsTypeOf(value) {
		return nil, newCodedError(CodeInvalidType, "Expected value of type '%s' for field '%s', got %T.", obj.Name, node.Path(), value)
	}
	return obj, nil
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// fail nulls n, drops its subtree and records err at n's path.
func (ec *ExecutionContext) fail(n Node, err error) {
	switch node := n.(type) {
	case *ObjectNode:
		node.children = nil
	case *ArrayNode:
		node.items = nil
	}
	n.base().setResult(nil)
	ec.Errors.Add(ec.locatedError(n, err))
}

func (ec *ExecutionContext) locatedError(n Node, err error) *ExecutionError {
	var located *ExecutionError
	if ee, ok := err.(*ExecutionError); ok {
		cp := *ee
		located = &cp
	} else {
		located = ec.unhandledError(n, err)
	}
	if len(located.Path) == 0 {
		located.Path = n.Path()
	}
	if len(located.Locations) == 0 {
		if f := n.Field(); f != nil && f.Position != nil {
			located.AddLocation(f.Position.Line, f.Position.Column)
		}
	}
	if len(located.Codes) == 0 {
		located.collectCodes()
	}
	return located
}

// unhandledError converts an error returned by a resolver. The delegate may
// replace it; masking hides the original message from the response.
func (ec *ExecutionContext) unhandledError(n Node, err error) *ExecutionError {
	if delegate := ec.options.UnhandledErrorDelegate; delegate != nil {
		if replaced := delegate(ec.Context, err); replaced != nil {
			err = replaced
		}
		if ee, ok := err.(*ExecutionError); ok {
			cp := *ee
			return &cp
		}
	}
	ec.Logger.Warn("field resolver failed",
		zap.Stringer("path", n.Path()),
		zap.Error(err))

	message := err.Error()
	if ec.options.MaskUnhandledErrors {
		message = fmt.Sprintf("Error trying to resolve field '%s'.", n.FieldDefinition().Name)
	}
	return &ExecutionError{Message: message, Code: CodeUnhandled, err: err}
}

func (ec *ExecutionContext) fieldResolved(n Node, start time.Time, err error) {
	ec.resolved.Inc()
	b := n.base()
	var parent string
	if p, ok := b.parent.(objectParent); ok && p.ObjectType() != nil {
		parent = p.ObjectType().Name
	}
	eventbus.Publish(ec.Context, events.FieldResolved{
		ParentType: parent,
		Field:      b.def.Name,
		Path:       n.Path().String(),
		Async:      b.def.Async,
		Err:        err,
		Duration:   time.Since(start),
	})
}
