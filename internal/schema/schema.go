package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Schema is the root of a type graph. It is configured by the caller, then
// frozen by Initialize; after that every lookup is read-only and safe for
// concurrent use.
type Schema struct {
	Description  string
	Query        *Object
	Mutation     *Object
	Subscription *Object

	// AdditionalTypes are registered even when unreachable from the roots,
	// for example implementations only returned through an interface.
	AdditionalTypes      []NamedType
	AdditionalDirectives []*Directive
	// NameConverter defaults to CamelCaseConverter.
	NameConverter        NameConverter
	TypeMappingProviders []TypeMappingProvider

	typeMappings     map[reflect.Type]NamedType
	typeConstructors map[reflect.Type]TypeConstructor

	mu      sync.Mutex
	done    bool
	initErr error
	types   *SchemaTypes
}

// NewSchema returns a schema rooted at query.
func NewSchema(query *Object) *Schema {
	return &Schema{Query: query}
}

func (s *Schema) SetMutation(t *Object) *Schema {
	s.Mutation = t
	return s
}

func (s *Schema) SetSubscription(t *Object) *Schema {
	s.Subscription = t
	return s
}

func (s *Schema) SetDescription(desc string) *Schema {
	s.Description = desc
	return s
}

func (s *Schema) SetNameConverter(c NameConverter) *Schema {
	s.NameConverter = c
	return s
}

func (s *Schema) AddType(t NamedType) *Schema {
	s.AdditionalTypes = append(s.AdditionalTypes, t)
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	s.AdditionalDirectives = append(s.AdditionalDirectives, d)
	return s
}

// RegisterTypeMapping maps goType to an existing type instance. It takes
// precedence over every provider.
func (s *Schema) RegisterTypeMapping(goType reflect.Type, t NamedType) *Schema {
	if s.typeMappings == nil {
		s.typeMappings = make(map[reflect.Type]NamedType)
	}
	s.typeMappings[goType] = t
	return s
}

// RegisterTypeConstructor maps goType to a type built lazily by ctor.
func (s *Schema) RegisterTypeConstructor(goType reflect.Type, ctor TypeConstructor) *Schema {
	if s.typeConstructors == nil {
		s.typeConstructors = make(map[reflect.Type]TypeConstructor)
	}
	s.typeConstructors[goType] = ctor
	return s
}

func (s *Schema) AddTypeMappingProvider(p TypeMappingProvider) *Schema {
	s.TypeMappingProviders = append(s.TypeMappingProviders, p)
	return s
}

// Initialize runs type discovery, processing and finalization once. Later
// calls return the first outcome.
func (s *Schema) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.initErr
	}
	s.done = true
	st, err := buildSchemaTypes(s)
	if err != nil {
		s.initErr = fmt.Errorf("schema initialization: %w", err)
		return s.initErr
	}
	s.types = st
	return nil
}

// Initialized reports whether Initialize succeeded.
func (s *Schema) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types != nil
}

// Types returns the frozen registry. It panics when the schema has not been
// initialized successfully.
func (s *Schema) Types() *SchemaTypes {
	if s.types == nil {
		panic("schema: Types called before successful Initialize")
	}
	return s.types
}

// Type looks up a named type, including introspection types.
func (s *Schema) Type(name string) NamedType {
	if s.types == nil {
		return nil
	}
	return s.types.types[name]
}

// AllTypes returns every registered type sorted by name.
func (s *Schema) AllTypes() []NamedType {
	if s.types == nil {
		return nil
	}
	out := make([]NamedType, 0, len(s.types.types))
	for _, name := range s.types.sortedNames() {
		out = append(out, s.types.types[name])
	}
	return out
}

func (s *Schema) Directive(name string) *Directive {
	if s.types == nil {
		return nil
	}
	return s.types.directives[name]
}

// Directives returns every directive sorted by name.
func (s *Schema) Directives() []*Directive {
	if s.types == nil {
		return nil
	}
	out := make([]*Directive, 0, len(s.types.directives))
	for _, d := range s.types.directives {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PossibleTypes returns the concrete objects of an abstract type in
// declaration order. A concrete object is its own only possible type.
func (s *Schema) PossibleTypes(t NamedType) []*Object {
	switch v := t.(type) {
	case *Interface, *Union:
		if s.types == nil {
			return nil
		}
		return s.types.possible[v]
	case *Object:
		return []*Object{v}
	}
	return nil
}

// IsPossibleType reports whether obj may be the runtime type of abstract.
func (s *Schema) IsPossibleType(abstract NamedType, obj *Object) bool {
	for _, p := range s.PossibleTypes(abstract) {
		if p == obj {
			return true
		}
	}
	return false
}

// IsIntrospectionType reports whether t is one of the seeded meta-types.
func (s *Schema) IsIntrospectionType(t NamedType) bool {
	if s.types == nil {
		return false
	}
	return s.types.meta[t]
}

// SchemaMetaField is the __schema field available on the query root.
func (s *Schema) SchemaMetaField() *Field { return s.types.schemaField }

// TypeMetaField is the __type(name:) field available on the query root.
func (s *Schema) TypeMetaField() *Field { return s.types.typeField }

// TypeNameMetaField is the __typename field available on every object.
func (s *Schema) TypeNameMetaField() *Field { return s.types.typeNameField }

// RootType returns the root object for an operation kind: "query",
// "mutation" or "subscription".
func (s *Schema) RootType(operation string) *Object {
	switch operation {
	case "query":
		return s.Query
	case "mutation":
		return s.Mutation
	case "subscription":
		return s.Subscription
	}
	return nil
}
