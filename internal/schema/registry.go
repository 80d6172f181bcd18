package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ErrLoopDetected is returned when a TypeConstructor needs its own Go type
// while it is still being built.
var ErrLoopDetected = errors.New("loop detected")

// buildMu serializes schema builds. Type instances may be shared between
// schemas, and a build fills in their placeholders.
var buildMu sync.Mutex

// SchemaTypes is the frozen name-to-type table of an initialized schema.
type SchemaTypes struct {
	types      map[string]NamedType
	directives map[string]*Directive
	meta       map[NamedType]bool
	// possible holds the concrete objects of each abstract type.
	possible map[NamedType][]*Object
	// order is the registration order, used for possible-type ordering.
	order []string

	schemaField   *Field
	typeField     *Field
	typeNameField *Field
}

// Len returns the number of registered named types.
func (st *SchemaTypes) Len() int { return len(st.types) }

// Lookup returns the type registered as name.
func (st *SchemaTypes) Lookup(name string) NamedType { return st.types[name] }

func (st *SchemaTypes) sortedNames() []string {
	names := make([]string, 0, len(st.types))
	for n := range st.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// goTypeKey separates the output and input mappings of one Go type.
type goTypeKey struct {
	t     reflect.Type
	input bool
}

// collector carries the mutable state of one schema build.
type collector struct {
	s         *Schema
	st        *SchemaTypes
	converter NameConverter
	providers []TypeMappingProvider

	queue        []NamedType
	byGoType     map[goTypeKey]NamedType
	constructing map[reflect.Type]bool
	processed    map[NamedType]bool
	// unionMembers collects the objects mapped from Union.GoTypes.
	unionMembers map[*Union][]*Object
}

func buildSchemaTypes(s *Schema) (*SchemaTypes, error) {
	if s.Query == nil {
		return nil, fmt.Errorf("query root type is required")
	}
	buildMu.Lock()
	defer buildMu.Unlock()
	c := &collector{
		s: s,
		st: &SchemaTypes{
			types:      make(map[string]NamedType),
			directives: make(map[string]*Directive),
			meta:       make(map[NamedType]bool),
			possible:   make(map[NamedType][]*Object),
		},
		converter:    s.NameConverter,
		byGoType:     make(map[goTypeKey]NamedType),
		constructing: make(map[reflect.Type]bool),
		processed:    make(map[NamedType]bool),
		unionMembers: make(map[*Union][]*Object),
	}
	if c.converter == nil {
		c.converter = CamelCaseConverter{}
	}
	c.providers = append(c.providers, s.TypeMappingProviders...)
	c.providers = append(c.providers, newBuiltinScalarMappings(), enumMappings{})

	if err := c.discover(); err != nil {
		return nil, err
	}
	if err := c.process(); err != nil {
		return nil, err
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c.st, nil
}

// discover seeds the introspection types, then registers everything
// reachable from the roots, the additional types and the directives.
func (c *collector) discover() error {
	meta := newIntrospection()
	// Meta-types reference each other, so all of them are marked before
	// the first one is walked.
	for _, t := range meta.types {
		c.st.meta[t] = true
	}
	for _, t := range meta.types {
		if _, err := c.add(t, true); err != nil {
			return err
		}
	}
	c.st.schemaField = meta.schemaField
	c.st.typeField = meta.typeField
	c.st.typeNameField = meta.typeNameField

	roots := []*Object{c.s.Query, c.s.Mutation, c.s.Subscription}
	for _, root := range roots {
		if root == nil {
			continue
		}
		if _, err := c.add(root, false); err != nil {
			return err
		}
	}
	for _, t := range c.s.AdditionalTypes {
		if _, err := c.add(t, false); err != nil {
			return err
		}
	}

	directives := []*Directive{IncludeDirective(), SkipDirective(), DeprecatedDirective(), SpecifiedByDirective()}
	directives = append(directives, c.s.AdditionalDirectives...)
	for _, d := range directives {
		if err := c.addDirective(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) addDirective(d *Directive) error {
	if err := ValidateName(d.Name); err != nil {
		return fmt.Errorf("directive: %w", err)
	}
	if existing, ok := c.st.directives[d.Name]; ok {
		if existing == d {
			return nil
		}
		if existing.builtin && !d.builtin {
			// A user definition replaces a built-in of the same name.
			c.st.directives[d.Name] = d
		} else if !(existing.builtin && d.builtin) {
			return fmt.Errorf("directive @%s is defined more than once", d.Name)
		}
		return c.walkArgs(d.Arguments)
	}
	c.st.directives[d.Name] = d
	return c.walkArgs(d.Arguments)
}

// add registers t and walks the types it already references. It returns
// the canonical instance for the name.
func (c *collector) add(t NamedType, meta bool) (NamedType, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot register a nil type")
	}
	name := t.TypeName()
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("type %T: %w", t, err)
	}
	if !meta && strings.HasPrefix(name, "__") {
		return nil, fmt.Errorf("type name %q is reserved for introspection", name)
	}
	if existing, ok := c.st.types[name]; ok {
		if existing == t {
			return existing, nil
		}
		if a, ok := existing.(*Scalar); ok {
			if b, ok := t.(*Scalar); ok && a.sameClass(b) {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("type name %q is already registered: %s conflicts with %s",
			name, describeType(existing), describeType(t))
	}
	c.st.types[name] = t
	c.st.order = append(c.st.order, name)
	c.queue = append(c.queue, t)

	switch v := t.(type) {
	case *Object:
		if err := c.walkFields(v.Fields); err != nil {
			return nil, err
		}
		if err := c.walkAll(v.Interfaces); err != nil {
			return nil, err
		}
	case *Interface:
		if err := c.walkFields(v.Fields); err != nil {
			return nil, err
		}
		if err := c.walkAll(v.Interfaces); err != nil {
			return nil, err
		}
	case *Union:
		if err := c.walkAll(v.Types); err != nil {
			return nil, err
		}
	case *InputObject:
		if err := c.walkArgs(v.Fields); err != nil {
			return nil, err
		}
	case *Scalar, *Enum:
	default:
		panic("unreachable")
	}
	return t, nil
}

func describeType(t NamedType) string {
	if s, ok := t.(*Scalar); ok && s.builtin != "" {
		return fmt.Sprintf("built-in scalar %s (%p)", s.builtin, s)
	}
	return fmt.Sprintf("%T %s (%p)", t, t.TypeName(), t)
}

func (c *collector) walkFields(fields []*Field) error {
	for _, f := range fields {
		if err := c.walk(f.Type); err != nil {
			return err
		}
		if err := c.walkArgs(f.Arguments); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) walkArgs(args []*Argument) error {
	for _, a := range args {
		if err := c.walk(a.Type); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) walkAll(types []Type) error {
	for _, t := range types {
		if err := c.walk(t); err != nil {
			return err
		}
	}
	return nil
}

// walk registers the named type inside t. Placeholders are left for later
// phases.
func (c *collector) walk(t Type) error {
	switch v := t.(type) {
	case nil, *TypeReference:
		return nil
	case *List:
		return c.walk(v.OfType)
	case *NonNull:
		return c.walk(v.OfType)
	case NamedType:
		_, err := c.add(v, c.st.meta[v])
		return err
	default:
		panic("unreachable")
	}
}

// process resolves Go-type placeholders and applies the name converter,
// until no newly registered type is left unprocessed.
func (c *collector) process() error {
	for len(c.queue) > 0 {
		t := c.queue[0]
		c.queue = c.queue[1:]
		if c.processed[t] {
			continue
		}
		c.processed[t] = true
		if err := c.processType(t); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) processType(t NamedType) error {
	meta := c.st.meta[t]
	switch v := t.(type) {
	case *Object:
		return c.processFields(v, v.Fields, meta)
	case *Interface:
		return c.processFields(v, v.Fields, meta)
	case *Union:
		for _, gt := range v.GoTypes {
			named, err := c.namedFromGoType(gt, false)
			if err != nil {
				return fmt.Errorf("union %s: %w", v.Name, err)
			}
			obj, ok := named.(*Object)
			if !ok {
				return fmt.Errorf("union %s: Go type %s maps to %s, which is not an object type", v.Name, gt, named.TypeName())
			}
			c.unionMembers[v] = append(c.unionMembers[v], obj)
		}
	case *InputObject:
		for _, f := range v.Fields {
			if !meta {
				setString(&f.Name, c.converter.NameForField(f.Name, v))
			}
			if err := c.resolveArgType(f, fmt.Sprintf("input field %s.%s", v.Name, f.Name)); err != nil {
				return err
			}
		}
	case *Scalar, *Enum:
	default:
		panic("unreachable")
	}
	return nil
}

func (c *collector) processFields(parent NamedType, fields []*Field, meta bool) error {
	for _, f := range fields {
		if !meta {
			setString(&f.Name, c.converter.NameForField(f.Name, parent))
		}
		if err := ValidateName(f.Name); err != nil {
			return fmt.Errorf("field of %s: %w", parent.TypeName(), err)
		}
		if f.Type == nil {
			if f.GoType == nil {
				return fmt.Errorf("field %s.%s has neither a type nor a Go type", parent.TypeName(), f.Name)
			}
			t, err := c.fromGoType(f.GoType, false)
			if err != nil {
				return fmt.Errorf("field %s.%s: %w", parent.TypeName(), f.Name, err)
			}
			f.Type = t
		}
		for _, a := range f.Arguments {
			if !meta {
				setString(&a.Name, c.converter.NameForArgument(a.Name, parent, f))
			}
			if err := c.resolveArgType(a, fmt.Sprintf("argument %s.%s(%s)", parent.TypeName(), f.Name, a.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *collector) resolveArgType(a *Argument, where string) error {
	if err := ValidateName(a.Name); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	if a.Type != nil {
		return nil
	}
	if a.GoType == nil {
		return fmt.Errorf("%s has neither a type nor a Go type", where)
	}
	t, err := c.fromGoType(a.GoType, true)
	if err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	a.Type = t
	return nil
}

// Resolve implements TypeResolver for constructors.
func (c *collector) Resolve(goType reflect.Type, input bool) (Type, error) {
	return c.fromGoType(goType, input)
}

// fromGoType derives a wrapped type from a Go type: pointers are nullable,
// slices and arrays are nullable lists, everything else is non-null.
func (c *collector) fromGoType(t reflect.Type, input bool) (Type, error) {
	if _, mapped := c.explicit(t); mapped {
		named, err := c.namedFromGoType(t, input)
		if err != nil {
			return nil, err
		}
		return NonNullOf(named), nil
	}
	switch t.Kind() {
	case reflect.Pointer:
		inner, err := c.fromGoType(t.Elem(), input)
		if err != nil {
			return nil, err
		}
		return Nullable(inner), nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			// Byte slices are opaque text, not lists of Byte.
			return String, nil
		}
		item, err := c.fromGoType(t.Elem(), input)
		if err != nil {
			return nil, err
		}
		return ListOf(item), nil
	}
	named, err := c.namedFromGoType(t, input)
	if err != nil {
		return nil, err
	}
	return NonNullOf(named), nil
}

func (c *collector) explicit(t reflect.Type) (any, bool) {
	if nt, ok := c.s.typeMappings[t]; ok {
		return nt, true
	}
	if ctor, ok := c.s.typeConstructors[t]; ok {
		return ctor, true
	}
	return nil, false
}

// namedFromGoType runs the mapping chain: explicit instances, explicit
// constructors, custom providers, built-in scalars, enum auto-mapping.
func (c *collector) namedFromGoType(t reflect.Type, input bool) (NamedType, error) {
	if named, ok := c.byGoType[goTypeKey{t, input}]; ok {
		return c.checkDirection(t, named, input)
	}
	// Scalars and enums serve both directions with one instance.
	if named, ok := c.byGoType[goTypeKey{t, !input}]; ok && IsInputType(named) && IsOutputType(named) {
		c.byGoType[goTypeKey{t, input}] = named
		return named, nil
	}
	var named NamedType
	if nt, ok := c.s.typeMappings[t]; ok {
		named = nt
	} else if ctor, ok := c.s.typeConstructors[t]; ok {
		if c.constructing[t] {
			return nil, fmt.Errorf("%w: Go type %s is already being constructed", ErrLoopDetected, t)
		}
		c.constructing[t] = true
		built, err := ctor(c)
		delete(c.constructing, t)
		if err != nil {
			return nil, fmt.Errorf("construct type for %s: %w", t, err)
		}
		named = built
	} else {
		for _, p := range c.providers {
			if nt := p.MapType(t, input); nt != nil {
				named = nt
				break
			}
		}
	}
	if named == nil {
		return nil, fmt.Errorf("no GraphQL type mapping for Go type %s", t)
	}
	canonical, err := c.add(named, false)
	if err != nil {
		return nil, err
	}
	c.byGoType[goTypeKey{t, input}] = canonical
	return c.checkDirection(t, canonical, input)
}

func (c *collector) checkDirection(goType reflect.Type, t NamedType, input bool) (NamedType, error) {
	if input && !IsInputType(t) {
		return nil, fmt.Errorf("Go type %s maps to output type %s in an input position", goType, t.TypeName())
	}
	if !input && !IsOutputType(t) {
		return nil, fmt.Errorf("Go type %s maps to input type %s in an output position", goType, t.TypeName())
	}
	return t, nil
}

// finalize replaces references, fills possible types, copies interface
// descriptions and initializes every type once.
func (c *collector) finalize() error {
	names := c.st.sortedNames()
	for _, name := range names {
		if err := c.resolveRefsOf(c.st.types[name]); err != nil {
			return err
		}
	}
	for _, d := range c.st.directives {
		for _, a := range d.Arguments {
			t, err := c.resolveRef(a.Type)
			if err != nil {
				return fmt.Errorf("directive @%s argument %s: %w", d.Name, a.Name, err)
			}
			setType(&a.Type, t)
		}
	}

	for _, name := range c.st.order {
		switch v := c.st.types[name].(type) {
		case *Object:
			for _, it := range v.ImplementedInterfaces() {
				c.st.possible[it] = append(c.st.possible[it], v)
			}
		case *Union:
			members, err := c.unionObjects(v)
			if err != nil {
				return err
			}
			c.st.possible[v] = members
		}
	}

	for _, name := range names {
		switch v := c.st.types[name].(type) {
		case *Object:
			inheritDescriptions(v.Fields, v.ImplementedInterfaces())
		case *Interface:
			inheritDescriptions(v.Fields, v.ImplementedInterfaces())
		}
	}

	initialized := make(map[NamedType]bool, len(c.st.types))
	for _, name := range names {
		t := c.st.types[name]
		if initialized[t] {
			continue
		}
		initialized[t] = true
		if err := t.Initialize(c.s); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) resolveRefsOf(t NamedType) error {
	switch v := t.(type) {
	case *Object:
		if err := c.resolveFieldRefs(v.Name, v.Fields); err != nil {
			return err
		}
		return c.resolveInterfaceRefs(v.Name, v.Interfaces)
	case *Interface:
		if err := c.resolveFieldRefs(v.Name, v.Fields); err != nil {
			return err
		}
		return c.resolveInterfaceRefs(v.Name, v.Interfaces)
	case *Union:
		if len(v.Types)+len(c.unionMembers[v]) == 0 {
			return fmt.Errorf("union %s must have at least one member type", v.Name)
		}
	case *InputObject:
		for _, f := range v.Fields {
			r, err := c.resolveRef(f.Type)
			if err != nil {
				return fmt.Errorf("input field %s.%s: %w", v.Name, f.Name, err)
			}
			setType(&f.Type, r)
		}
	case *Scalar, *Enum:
	default:
		panic("unreachable")
	}
	return nil
}

func (c *collector) resolveFieldRefs(owner string, fields []*Field) error {
	for _, f := range fields {
		r, err := c.resolveRef(f.Type)
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", owner, f.Name, err)
		}
		if !IsOutputType(r) {
			return fmt.Errorf("field %s.%s has input type %s", owner, f.Name, r)
		}
		setType(&f.Type, r)
		for _, a := range f.Arguments {
			r, err := c.resolveRef(a.Type)
			if err != nil {
				return fmt.Errorf("argument %s.%s(%s): %w", owner, f.Name, a.Name, err)
			}
			if !IsInputType(r) {
				return fmt.Errorf("argument %s.%s(%s) has output type %s", owner, f.Name, a.Name, r)
			}
			setType(&a.Type, r)
		}
	}
	return nil
}

func (c *collector) resolveInterfaceRefs(owner string, list []Type) error {
	for i, t := range list {
		r, err := c.resolveRef(t)
		if err != nil {
			return fmt.Errorf("%s interfaces: %w", owner, err)
		}
		it, ok := r.(*Interface)
		if !ok {
			return fmt.Errorf("%s cannot implement %s: not an interface type", owner, r)
		}
		if list[i] != Type(it) {
			list[i] = it
		}
	}
	return nil
}

// unionObjects resolves the members of u without touching u.Types.
func (c *collector) unionObjects(u *Union) ([]*Object, error) {
	out := make([]*Object, 0, len(u.Types)+len(c.unionMembers[u]))
	seen := make(map[*Object]bool)
	for _, m := range u.Types {
		r, err := c.resolveRef(m)
		if err != nil {
			return nil, fmt.Errorf("union %s: %w", u.Name, err)
		}
		obj, ok := r.(*Object)
		if !ok {
			return nil, fmt.Errorf("union %s: member %s is not an object type", u.Name, r)
		}
		if !seen[obj] {
			seen[obj] = true
			out = append(out, obj)
		}
	}
	for _, obj := range c.unionMembers[u] {
		if !seen[obj] {
			seen[obj] = true
			out = append(out, obj)
		}
	}
	return out, nil
}

// resolveRef replaces placeholders inside t, recursing through wrappers.
// Named types are swapped for the canonical registered instance.
func (c *collector) resolveRef(t Type) (Type, error) {
	switch v := t.(type) {
	case nil:
		return nil, fmt.Errorf("missing type")
	case *TypeReference:
		named, ok := c.st.types[v.Name]
		if !ok {
			return nil, fmt.Errorf("unresolved type reference %q", v.Name)
		}
		return named, nil
	case *List:
		inner, err := c.resolveRef(v.OfType)
		if err != nil {
			return nil, err
		}
		setType(&v.OfType, inner)
		return v, nil
	case *NonNull:
		inner, err := c.resolveRef(v.OfType)
		if err != nil {
			return nil, err
		}
		if _, ok := inner.(*NonNull); ok {
			return nil, fmt.Errorf("non-null type %s cannot wrap another non-null type", inner)
		}
		setType(&v.OfType, inner)
		return v, nil
	case NamedType:
		if canonical, ok := c.st.types[v.TypeName()]; ok {
			return canonical, nil
		}
		return nil, fmt.Errorf("type %s is not registered", v.TypeName())
	default:
		panic("unreachable")
	}
}

// inheritDescriptions copies interface field descriptions onto fields that
// have none.
func inheritDescriptions(fields []*Field, interfaces []*Interface) {
	for _, f := range fields {
		if f.Description != "" {
			continue
		}
		for _, it := range interfaces {
			if inf := findField(it.Fields, f.Name); inf != nil && inf.Description != "" {
				f.Description = inf.Description
				break
			}
		}
	}
}

// setType and setString write only on change, so rebuilding a schema over
// already resolved instances leaves them untouched for concurrent readers.
func setType(dst *Type, t Type) {
	if *dst != t {
		*dst = t
	}
}

func setString(dst *string, v string) {
	if *dst != v {
		*dst = v
	}
}
