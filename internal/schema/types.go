package schema

import (
	"fmt"
	"reflect"
)

// Type is any GraphQL type: a named type, a List or NonNull wrapper, or a
// TypeReference placeholder that the registry replaces during
// finalization. The set of implementations is closed.
type Type interface {
	String() string
	isType()
}

// NamedType is a type with a schema-wide unique name.
type NamedType interface {
	Type
	TypeName() string
	TypeDescription() string
	// Initialize is called by the registry exactly once, after every type
	// reference has been replaced.
	Initialize(s *Schema) error
}

type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
	TypeKindList        TypeKind = "LIST"
	TypeKindNonNull     TypeKind = "NON_NULL"
)

// Object is a concrete output type with fields.
type Object struct {
	Name        string
	Description string
	Fields      []*Field
	// Interfaces holds *Interface values or *TypeReference placeholders.
	Interfaces []Type
	// IsTypeOf reports whether a runtime value belongs to this type. It is
	// consulted when an abstract type has no ResolveType of its own.
	IsTypeOf func(value any) bool

	fieldIndex map[string]*Field
}

// Interface is an abstract type whose possible types are the objects
// declaring it.
type Interface struct {
	Name        string
	Description string
	Fields      []*Field
	Interfaces  []Type
	// ResolveType picks the concrete object for a value. When set, IsTypeOf
	// predicates of the possible types are never consulted.
	ResolveType func(value any) *Object

	fieldIndex map[string]*Field
}

// Union is an abstract type over a fixed set of objects. Members may be
// given as instances, as references, or as Go types mapped by the registry.
type Union struct {
	Name        string
	Description string
	Types       []Type
	GoTypes     []reflect.Type
	ResolveType func(value any) *Object
}

type Enum struct {
	Name        string
	Description string
	Values      []*EnumValue
}

// EnumValue maps a GraphQL enum name to an internal value. A nil Value
// stands for the name itself.
type EnumValue struct {
	Name              string
	Value             any
	Description       string
	DeprecationReason string
}

type InputObject struct {
	Name        string
	Description string
	Fields      []*Argument
	// Parse converts the coerced field map into the internal value handed to
	// resolvers. The map itself is used when Parse is nil.
	Parse func(fields map[string]any) (any, error)

	fieldIndex map[string]*Argument
}

// List wraps an item type.
type List struct {
	OfType Type
}

// NonNull wraps a nullable type. It never wraps another NonNull.
type NonNull struct {
	OfType Type
}

// TypeReference names a type that is resolved once the whole graph is
// registered. It allows forward and cyclic references.
type TypeReference struct {
	Name string
}

func (*Scalar) isType()        {}
func (*Object) isType()        {}
func (*Interface) isType()     {}
func (*Union) isType()         {}
func (*Enum) isType()          {}
func (*InputObject) isType()   {}
func (*List) isType()          {}
func (*NonNull) isType()       {}
func (*TypeReference) isType() {}

func (t *Scalar) String() string        { return t.Name }
func (t *Object) String() string        { return t.Name }
func (t *Interface) String() string     { return t.Name }
func (t *Union) String() string         { return t.Name }
func (t *Enum) String() string          { return t.Name }
func (t *InputObject) String() string   { return t.Name }
func (t *List) String() string          { return "[" + typeString(t.OfType) + "]" }
func (t *NonNull) String() string       { return typeString(t.OfType) + "!" }
func (t *TypeReference) String() string { return t.Name }

func (t *Scalar) TypeName() string      { return t.Name }
func (t *Object) TypeName() string      { return t.Name }
func (t *Interface) TypeName() string   { return t.Name }
func (t *Union) TypeName() string       { return t.Name }
func (t *Enum) TypeName() string        { return t.Name }
func (t *InputObject) TypeName() string { return t.Name }

func (t *Scalar) TypeDescription() string      { return t.Description }
func (t *Object) TypeDescription() string      { return t.Description }
func (t *Interface) TypeDescription() string   { return t.Description }
func (t *Union) TypeDescription() string       { return t.Description }
func (t *Enum) TypeDescription() string        { return t.Description }
func (t *InputObject) TypeDescription() string { return t.Description }

func typeString(t Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// ListOf returns a list of t.
func ListOf(t Type) *List { return &List{OfType: t} }

// NewNonNull wraps t, rejecting a NonNull inner type.
func NewNonNull(t Type) (*NonNull, error) {
	if t == nil {
		return nil, fmt.Errorf("non-null type requires an inner type")
	}
	if _, ok := t.(*NonNull); ok {
		return nil, fmt.Errorf("cannot wrap non-null type %s in another non-null", t)
	}
	return &NonNull{OfType: t}, nil
}

// NonNullOf is NewNonNull for statically known types. It panics on a
// NonNull inner type.
func NonNullOf(t Type) *NonNull {
	nn, err := NewNonNull(t)
	if err != nil {
		panic(err)
	}
	return nn
}

// Ref returns a forward reference to the type named name.
func Ref(name string) *TypeReference { return &TypeReference{Name: name} }

// KindOf reports the introspection kind of t. Placeholders have no kind.
func KindOf(t Type) TypeKind {
	switch t.(type) {
	case *Scalar:
		return TypeKindScalar
	case *Object:
		return TypeKindObject
	case *Interface:
		return TypeKindInterface
	case *Union:
		return TypeKindUnion
	case *Enum:
		return TypeKindEnum
	case *InputObject:
		return TypeKindInputObject
	case *List:
		return TypeKindList
	case *NonNull:
		return TypeKindNonNull
	case *TypeReference, nil:
		return ""
	default:
		panic("unreachable")
	}
}

// Named unwraps every List and NonNull layer. It returns nil for an
// unresolved reference.
func Named(t Type) NamedType {
	for {
		switch v := t.(type) {
		case *List:
			t = v.OfType
		case *NonNull:
			t = v.OfType
		case NamedType:
			return v
		default:
			return nil
		}
	}
}

// Nullable strips one NonNull layer, if any.
func Nullable(t Type) Type {
	if nn, ok := t.(*NonNull); ok {
		return nn.OfType
	}
	return t
}

func IsNonNull(t Type) bool {
	_, ok := t.(*NonNull)
	return ok
}

// IsList reports whether t is a list once an outer NonNull is removed.
func IsList(t Type) bool {
	_, ok := Nullable(t).(*List)
	return ok
}

func IsAbstract(t Type) bool {
	switch t.(type) {
	case *Interface, *Union:
		return true
	}
	return false
}

func IsLeaf(t Type) bool {
	switch Named(t).(type) {
	case *Scalar, *Enum:
		return true
	}
	return false
}

// IsInputType reports whether the named type of t may appear in argument
// and variable positions.
func IsInputType(t Type) bool {
	switch Named(t).(type) {
	case *Scalar, *Enum, *InputObject:
		return true
	}
	return false
}

func IsOutputType(t Type) bool {
	switch Named(t).(type) {
	case *Scalar, *Enum, *Object, *Interface, *Union:
		return true
	}
	return false
}

// FieldByName looks a field up by its schema name.
func (t *Object) FieldByName(name string) *Field {
	if t.fieldIndex != nil {
		return t.fieldIndex[name]
	}
	return findField(t.Fields, name)
}

func (t *Interface) FieldByName(name string) *Field {
	if t.fieldIndex != nil {
		return t.fieldIndex[name]
	}
	return findField(t.Fields, name)
}

// ImplementedInterfaces returns the resolved interfaces of t.
func (t *Object) ImplementedInterfaces() []*Interface {
	return resolvedInterfaces(t.Interfaces)
}

func (t *Interface) ImplementedInterfaces() []*Interface {
	return resolvedInterfaces(t.Interfaces)
}


func (t *InputObject) FieldByName(name string) *Argument {
	if t.fieldIndex != nil {
		return t.fieldIndex[name]
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ValueFor returns the enum value whose internal value equals v.
func (t *Enum) ValueFor(v any) *EnumValue {
	for _, ev := range t.Values {
		if enumInternal(ev) == v {
			return ev
		}
	}
	if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
		// Named string types compare by their underlying text.
		for _, ev := range t.Values {
			if s, ok := enumInternal(ev).(string); ok && s == rv.String() {
				return ev
			}
		}
	}
	return nil
}

// ValueByName returns the enum value declared as name.
func (t *Enum) ValueByName(name string) *EnumValue {
	for _, ev := range t.Values {
		if ev.Name == name {
			return ev
		}
	}
	return nil
}

// Serialize converts an internal value to its enum name.
func (t *Enum) Serialize(v any) (any, bool) {
	if ev := t.ValueFor(v); ev != nil {
		return ev.Name, true
	}
	return nil, false
}

// ParseValue converts an enum name from variables to the internal value.
func (t *Enum) ParseValue(v any) (any, bool) {
	name, ok := v.(string)
	if !ok {
		return nil, false
	}
	ev := t.ValueByName(name)
	if ev == nil {
		return nil, false
	}
	return enumInternal(ev), true
}

func enumInternal(ev *EnumValue) any {
	if ev.Value == nil {
		return ev.Name
	}
	return ev.Value
}

func findField(fields []*Field, name string) *Field {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func resolvedInterfaces(list []Type) []*Interface {
	out := make([]*Interface, 0, len(list))
	for _, t := range list {
		if it, ok := t.(*Interface); ok {
			out = append(out, it)
		}
	}
	return out
}

// indexFields maps items by name. It reports the first duplicated name.
func indexFields[T interface{ *Field | *Argument }](items []T, name func(T) string) (map[string]T, string) {
	index := make(map[string]T, len(items))
	for _, it := range items {
		n := name(it)
		if _, dup := index[n]; dup {
			return nil, n
		}
		index[n] = it
	}
	return index, ""
}

// keepIndex stores next in *dst unless *dst already holds the same entries.
func keepIndex[T comparable](dst *map[string]T, next map[string]T) {
	if cur := *dst; cur != nil && len(cur) == len(next) {
		same := true
		for k, v := range next {
			if cur[k] != v {
				same = false
				break
			}
		}
		if same {
			return
		}
	}
	*dst = next
}

func fieldName(f *Field) string       { return f.Name }
func argumentName(a *Argument) string { return a.Name }

func (t *Object) Initialize(s *Schema) error {
	index, dup := indexFields(t.Fields, fieldName)
	if dup != "" {
		return fmt.Errorf("type %s declares field %q more than once", t.Name, dup)
	}
	keepIndex(&t.fieldIndex, index)
	for _, it := range t.ImplementedInterfaces() {
		for _, want := range it.Fields {
			got := index[want.Name]
			if got == nil {
				return fmt.Errorf("type %s does not implement field %q of interface %s", t.Name, want.Name, it.Name)
			}
		}
	}
	return nil
}

func (t *Interface) Initialize(s *Schema) error {
	index, dup := indexFields(t.Fields, fieldName)
	if dup != "" {
		return fmt.Errorf("interface %s declares field %q more than once", t.Name, dup)
	}
	keepIndex(&t.fieldIndex, index)
	return nil
}

// Initialize is a no-op. Members are resolved by the registry.
func (t *Union) Initialize(s *Schema) error { return nil }

func (t *Enum) Initialize(s *Schema) error {
	seen := make(map[string]bool, len(t.Values))
	for _, ev := range t.Values {
		if err := ValidateName(ev.Name); err != nil {
			return fmt.Errorf("enum %s: %w", t.Name, err)
		}
		if seen[ev.Name] {
			return fmt.Errorf("enum %s declares value %q more than once", t.Name, ev.Name)
		}
		seen[ev.Name] = true
	}
	return nil
}

func (t *InputObject) Initialize(s *Schema) error {
	for _, f := range t.Fields {
		if !IsInputType(f.Type) {
			return fmt.Errorf("input field %s.%s has output type %s", t.Name, f.Name, f.Type)
		}
	}
	index, dup := indexFields(t.Fields, argumentName)
	if dup != "" {
		return fmt.Errorf("input object %s declares field %q more than once", t.Name, dup)
	}
	keepIndex(&t.fieldIndex, index)
	return nil
}
