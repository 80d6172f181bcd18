package executor

import (
	"sync"

	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
)

// Node is one position of the response: a selected field, or an item of a
// list.
type Node interface {
	Parent() Node
	// Field is the first AST field of the group; Fields returns all of them.
	Field() *language.Field
	Fields() []*language.Field
	FieldDefinition() *schema.Field
	// GraphType is the declared type of this position, including Non-Null.
	GraphType() schema.Type
	// Index is the list position of an item node, or -1.
	Index() int
	Result() any
	IsResultSet() bool
	Path() Path
	// ToValue converts the subtree into its response value, applying null
	// propagation.
	ToValue() any

	base() *baseNode
}

type baseNode struct {
	parent Node
	fields []*language.Field
	def    *schema.Field
	typ    schema.Type
	index  int

	result    any
	resultSet bool
	deferred  schema.Deferred

	pathOnce sync.Once
	path     Path
}

func (n *baseNode) Parent() Node                   { return n.parent }
func (n *baseNode) Fields() []*language.Field      { return n.fields }
func (n *baseNode) FieldDefinition() *schema.Field { return n.def }
func (n *baseNode) GraphType() schema.Type         { return n.typ }
func (n *baseNode) Index() int                     { return n.index }
func (n *baseNode) Result() any                    { return n.result }
func (n *baseNode) IsResultSet() bool              { return n.resultSet }
func (n *baseNode) base() *baseNode                { return n }

func (n *baseNode) Field() *language.Field {
	if len(n.fields) == 0 {
		return nil
	}
	return n.fields[0]
}

func (n *baseNode) setResult(v any) {
	n.result = v
	n.resultSet = true
}

// Name is the response key of the node's field.
func (n *baseNode) Name() string {
	if f := n.Field(); f != nil {
		return responseKey(f)
	}
	return ""
}

func (n *baseNode) computePath() Path {
	n.pathOnce.Do(func() {
		if n.parent == nil {
			n.path = Path{}
			return
		}
		if n.index >= 0 {
			n.path = appendPath(n.parent.Path(), n.index)
			return
		}
		n.path = appendPath(n.parent.Path(), n.Name())
	})
	return n.path
}

// ObjectNode is a position of object, interface or union type.
type ObjectNode struct {
	baseNode
	objectType *schema.Object
	children   []Node
}

func (n *ObjectNode) Path() Path { return n.computePath() }

// ObjectType is the concrete type, known once the value was completed.
func (n *ObjectNode) ObjectType() *schema.Object { return n.objectType }

func (n *ObjectNode) Children() []Node { return n.children }

func (n *ObjectNode) ToValue() any {
	if !n.resultSet || n.result == nil {
		return nil
	}
	return childrenToValue(n.children)
}

func childrenToValue(children []Node) any {
	out := make(OrderedMap, 0, len(children))
	for _, child := range children {
		v := child.ToValue()
		if v == nil && schema.IsNonNull(child.GraphType()) {
			return nil
		}
		out = append(out, KeyValue{Key: child.base().Name(), Value: v})
	}
	return out
}

// ArrayNode is a position of list type.
type ArrayNode struct {
	baseNode
	items []Node
}

func (n *ArrayNode) Path() Path { return n.computePath() }

func (n *ArrayNode) Items() []Node { return n.items }

func (n *ArrayNode) ToValue() any {
	if !n.resultSet || n.result == nil {
		return nil
	}
	out := make([]any, len(n.items))
	for i, item := range n.items {
		v := item.ToValue()
		if v == nil && schema.IsNonNull(item.GraphType()) {
			return nil
		}
		out[i] = v
	}
	return out
}

// ValueNode is a position of scalar or enum type. Its result is the
// serialized value.
type ValueNode struct {
	baseNode
}

func (n *ValueNode) Path() Path { return n.computePath() }

func (n *ValueNode) ToValue() any {
	if !n.resultSet {
		return nil
	}
	return n.result
}

// RootNode is the operation's root object. Its value is the response data.
type RootNode struct {
	ObjectNode
}

func (n *RootNode) Path() Path { return Path{} }

func (n *RootNode) ToValue() any {
	return childrenToValue(n.children)
}

// BuildExecutionNode creates the node for a position of type t. Item nodes
// pass their list index; field nodes pass -1.
func BuildExecutionNode(parent Node, t schema.Type, fields []*language.Field, def *schema.Field, index int) Node {
	b := baseNode{parent: parent, fields: fields, def: def, typ: t, index: index}
	switch nt := schema.Nullable(t).(type) {
	case *schema.List:
		return &ArrayNode{baseNode: b}
	case *schema.Object:
		return &ObjectNode{baseNode: b, objectType: nt}
	case *schema.Interface, *schema.Union:
		return &ObjectNode{baseNode: b}
	default:
		return &ValueNode{baseNode: b}
	}
}

func newRootNode(ec *ExecutionContext, root *schema.Object, selectionSet language.SelectionSet, rootValue any) *RootNode {
	n := &RootNode{ObjectNode{baseNode: baseNode{typ: root, index: -1}, objectType: root}}
	n.setResult(rootValue)
	n.children = ec.subFieldNodes(n, root, selectionSet)
	return n
}

// subFieldNodes creates one child node per response key. Fields unknown to
// objectType are skipped.
func (ec *ExecutionContext) subFieldNodes(parent Node, objectType *schema.Object, selectionSet language.SelectionSet) []Node {
	collected := ec.CollectFields(objectType, selectionSet)
	children := make([]Node, 0, collected.Len())
	for _, cf := range collected.Fields() {
		def := ec.fieldDefinition(objectType, cf.Fields[0].Name)
		if def == nil {
			continue
		}
		children = append(children, BuildExecutionNode(parent, def.Type, cf.Fields, def, -1))
	}
	return children
}

// pendingChildren appends the nodes that still need their resolver run
// below n: the fields of an object, or the fields of every object found in
// a list.
func pendingChildren(n Node, out []Node) []Node {
	switch node := n.(type) {
	case *RootNode:
		return append(out, node.children...)
	case *ObjectNode:
		if node.result == nil {
			return out
		}
		return append(out, node.children...)
	case *ArrayNode:
		for _, item := range node.items {
			out = pendingChildren(item, out)
		}
	}
	return out
}
