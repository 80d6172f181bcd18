package schema

import (
	"fmt"

	language "github.com/hanpama/graphexec/internal/language"
)

// SDLOptions binds runtime behavior to a schema written in SDL. Keys of the
// field maps have the form "Type.field".
type SDLOptions struct {
	Resolvers   map[string]FieldResolver
	Subscribers map[string]EventStreamResolver
	// Async marks fields whose resolvers are run as separate tasks by the
	// concurrent strategies.
	Async map[string]bool
	// IsTypeOf is keyed by object type name.
	IsTypeOf map[string]func(value any) bool
	// ResolveType is keyed by interface or union name and returns the name
	// of the concrete object type.
	ResolveType map[string]func(value any) string
	// Scalars supplies implementations for declared scalars. Declared
	// scalars without one fall back to the built-in of the same name, then
	// to an identity scalar.
	Scalars map[string]*Scalar
	// EnumValues maps enum value names to internal values, keyed by enum
	// type name.
	EnumValues map[string]map[string]any
}

// BuildFromSDL builds an initialized schema from SDL. Type extensions are
// merged into their base definitions. Field and argument names are kept
// exactly as written.
func BuildFromSDL(sdl string, opts SDLOptions) (*Schema, error) {
	doc, err := language.ParseSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}

	defs := make(map[string]*language.Definition, len(doc.Definitions))
	var order []string
	for _, def := range doc.Definitions {
		if _, dup := defs[def.Name]; dup {
			return nil, fmt.Errorf("type %q is defined more than once", def.Name)
		}
		clone := *def
		defs[def.Name] = &clone
		order = append(order, def.Name)
	}
	for _, ext := range doc.Extensions {
		base, ok := defs[ext.Name]
		if !ok {
			return nil, fmt.Errorf("cannot extend undefined type %q", ext.Name)
		}
		if base.Kind != ext.Kind {
			return nil, fmt.Errorf("cannot extend %s %q with a %s extension", base.Kind, ext.Name, ext.Kind)
		}
		base.Fields = append(base.Fields, ext.Fields...)
		base.Interfaces = append(base.Interfaces, ext.Interfaces...)
		base.Types = append(base.Types, ext.Types...)
		base.EnumValues = append(base.EnumValues, ext.EnumValues...)
		base.Directives = append(base.Directives, ext.Directives...)
	}

	b := &sdlBuilder{opts: opts, defs: defs, builtins: newBuiltinScalarMappings().byName}
	types := make(map[string]NamedType, len(order))
	for _, name := range order {
		t, err := b.buildType(defs[name])
		if err != nil {
			return nil, err
		}
		types[name] = t
	}

	roots := map[language.Operation]string{
		language.Query:        "Query",
		language.Mutation:     "Mutation",
		language.Subscription: "Subscription",
	}
	var description string
	if len(doc.Schema) > 0 {
		roots = map[language.Operation]string{}
		for _, sd := range append(doc.Schema, doc.SchemaExtension...) {
			if sd.Description != "" {
				description = sd.Description
			}
			for _, op := range sd.OperationTypes {
				roots[op.Operation] = op.Type
			}
		}
	}
	rootObject := func(op language.Operation, required bool) (*Object, error) {
		name, ok := roots[op]
		if !ok {
			if required {
				return nil, fmt.Errorf("schema has no %s root type", op)
			}
			return nil, nil
		}
		obj, ok := types[name].(*Object)
		if !ok {
			if required || len(doc.Schema) > 0 {
				return nil, fmt.Errorf("%s root type %q must be a defined object type", op, name)
			}
			return nil, nil
		}
		return obj, nil
	}

	query, err := rootObject(language.Query, true)
	if err != nil {
		return nil, err
	}
	mutation, err := rootObject(language.Mutation, false)
	if err != nil {
		return nil, err
	}
	subscription, err := rootObject(language.Subscription, false)
	if err != nil {
		return nil, err
	}

	s := NewSchema(query).
		SetMutation(mutation).
		SetSubscription(subscription).
		SetDescription(description).
		SetNameConverter(DefaultNameConverter{})
	for _, name := range order {
		s.AddType(types[name])
	}
	for _, dd := range doc.Directives {
		d, err := b.buildDirective(dd)
		if err != nil {
			return nil, err
		}
		s.AddDirective(d)
	}
	b.bindResolveType(s, types)

	if err := s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

type sdlBuilder struct {
	opts     SDLOptions
	defs     map[string]*language.Definition
	builtins map[string]*Scalar
}

func (b *sdlBuilder) buildType(def *language.Definition) (NamedType, error) {
	switch def.Kind {
	case language.Scalar:
		if s, ok := b.opts.Scalars[def.Name]; ok {
			return s, nil
		}
		if s, ok := b.builtins[def.Name]; ok {
			return s, nil
		}
		s := &Scalar{Name: def.Name, Description: def.Description}
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				s.SpecifiedByURL = arg.Value.Raw
			}
		}
		return s, nil

	case language.Object:
		obj := &Object{Name: def.Name, Description: def.Description, IsTypeOf: b.opts.IsTypeOf[def.Name]}
		for _, name := range def.Interfaces {
			obj.Interfaces = append(obj.Interfaces, Ref(name))
		}
		fields, err := b.buildFields(def)
		if err != nil {
			return nil, err
		}
		obj.Fields = fields
		return obj, nil

	case language.Interface:
		it := &Interface{Name: def.Name, Description: def.Description}
		for _, name := range def.Interfaces {
			it.Interfaces = append(it.Interfaces, Ref(name))
		}
		fields, err := b.buildFields(def)
		if err != nil {
			return nil, err
		}
		it.Fields = fields
		return it, nil

	case language.Union:
		u := &Union{Name: def.Name, Description: def.Description}
		for _, name := range def.Types {
			u.Types = append(u.Types, Ref(name))
		}
		return u, nil

	case language.Enum:
		e := &Enum{Name: def.Name, Description: def.Description}
		internal := b.opts.EnumValues[def.Name]
		for _, v := range def.EnumValues {
			ev := &EnumValue{
				Name:              v.Name,
				Description:       v.Description,
				DeprecationReason: deprecationReason(v.Directives),
			}
			if iv, ok := internal[v.Name]; ok {
				ev.Value = iv
			}
			e.Values = append(e.Values, ev)
		}
		return e, nil

	case language.InputObject:
		io := &InputObject{Name: def.Name, Description: def.Description}
		for _, f := range def.Fields {
			a, err := b.buildArgument(f.Name, f.Description, f.Type, f.DefaultValue, f.Directives)
			if err != nil {
				return nil, fmt.Errorf("input field %s.%s: %w", def.Name, f.Name, err)
			}
			io.Fields = append(io.Fields, a)
		}
		return io, nil
	}
	return nil, fmt.Errorf("unsupported definition kind %s for %q", def.Kind, def.Name)
}

func (b *sdlBuilder) buildFields(def *language.Definition) ([]*Field, error) {
	fields := make([]*Field, 0, len(def.Fields))
	for _, fd := range def.Fields {
		key := def.Name + "." + fd.Name
		f := &Field{
			Name:              fd.Name,
			Description:       fd.Description,
			DeprecationReason: deprecationReason(fd.Directives),
			Type:              b.typeOf(fd.Type),
			Resolver:          b.opts.Resolvers[key],
			Subscriber:        b.opts.Subscribers[key],
			Async:             b.opts.Async[key],
		}
		for _, ad := range fd.Arguments {
			a, err := b.buildArgument(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
			if err != nil {
				return nil, fmt.Errorf("argument %s(%s): %w", key, ad.Name, err)
			}
			f.Arguments = append(f.Arguments, a)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (b *sdlBuilder) buildArgument(name, desc string, t *language.Type, def *language.Value, dirs language.DirectiveList) (*Argument, error) {
	a := &Argument{
		Name:              name,
		Description:       desc,
		DeprecationReason: deprecationReason(dirs),
		Type:              b.typeOf(t),
	}
	if def != nil {
		if def.Kind == language.Variable {
			return nil, fmt.Errorf("default value must not reference a variable")
		}
		a.DefaultValue = b.defaultValue(def, t)
	}
	return a, nil
}

// defaultValue converts a literal into the internal value of t. Enum names
// are mapped through EnumValues when a mapping exists.
func (b *sdlBuilder) defaultValue(v *language.Value, t *language.Type) any {
	if v.Kind == language.NullValue {
		return nil
	}
	if t.Elem != nil {
		if v.Kind != language.ListValue {
			return []any{b.defaultValue(v, t.Elem)}
		}
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = b.defaultValue(c.Value, t.Elem)
		}
		return out
	}
	def := b.defs[t.NamedType]
	switch {
	case def != nil && def.Kind == language.Enum:
		if iv, ok := b.opts.EnumValues[def.Name][v.Raw]; ok {
			return iv
		}
		return v.Raw
	case def != nil && def.Kind == language.InputObject && v.Kind == language.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			if fd := def.Fields.ForName(c.Name); fd != nil {
				out[c.Name] = b.defaultValue(c.Value, fd.Type)
			}
		}
		return out
	}
	if s := b.scalarNamed(t.NamedType); s != nil && s.ParseLiteral != nil {
		if parsed, ok := s.ParseLiteral(v); ok {
			return parsed
		}
	}
	return LiteralValue(v, nil)
}

func (b *sdlBuilder) scalarNamed(name string) *Scalar {
	if s, ok := b.opts.Scalars[name]; ok {
		return s
	}
	return b.builtins[name]
}

// typeOf converts a type expression. Names declared in the document become
// references; undeclared built-in scalar names bind to their instances.
func (b *sdlBuilder) typeOf(t *language.Type) Type {
	var out Type
	if t.Elem != nil {
		out = ListOf(b.typeOf(t.Elem))
	} else if _, declared := b.defs[t.NamedType]; declared {
		out = Ref(t.NamedType)
	} else if s := b.scalarNamed(t.NamedType); s != nil {
		out = s
	} else {
		out = Ref(t.NamedType)
	}
	if t.NonNull {
		return &NonNull{OfType: out}
	}
	return out
}

func (b *sdlBuilder) buildDirective(dd *language.DirectiveDefinition) (*Directive, error) {
	d := &Directive{Name: dd.Name, Description: dd.Description, Repeatable: dd.IsRepeatable}
	for _, loc := range dd.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, ad := range dd.Arguments {
		a, err := b.buildArgument(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, fmt.Errorf("directive @%s argument %s: %w", dd.Name, ad.Name, err)
		}
		d.Arguments = append(d.Arguments, a)
	}
	return d, nil
}

// bindResolveType installs the name-based ResolveType callbacks. They look
// the object up in the built schema at call time.
func (b *sdlBuilder) bindResolveType(s *Schema, types map[string]NamedType) {
	for name, fn := range b.opts.ResolveType {
		fn := fn
		resolve := func(v any) *Object {
			obj, _ := s.Type(fn(v)).(*Object)
			return obj
		}
		switch t := types[name].(type) {
		case *Interface:
			t.ResolveType = resolve
		case *Union:
			t.ResolveType = resolve
		}
	}
}

func deprecationReason(dirs language.DirectiveList) string {
	d := dirs.ForName("deprecated")
	if d == nil {
		return ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil && arg.Value.Kind != language.NullValue {
		return arg.Value.Raw
	}
	return "No longer supported"
}
