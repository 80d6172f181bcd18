package schema

// introspection holds the meta-types seeded into every schema and the three
// meta fields the executor resolves outside of the root type's field list.
type introspection struct {
	types []NamedType

	schemaField   *Field
	typeField     *Field
	typeNameField *Field
}

var directiveLocations = []string{
	"QUERY", "MUTATION", "SUBSCRIPTION", "FIELD", "FRAGMENT_DEFINITION",
	"FRAGMENT_SPREAD", "INLINE_FRAGMENT", "VARIABLE_DEFINITION",
	"SCHEMA", "SCALAR", "OBJECT", "FIELD_DEFINITION", "ARGUMENT_DEFINITION",
	"INTERFACE", "UNION", "ENUM", "ENUM_VALUE", "INPUT_OBJECT", "INPUT_FIELD_DEFINITION",
}

func newIntrospection() *introspection {
	typeKind := &Enum{
		Name:        "__TypeKind",
		Description: "An enum describing what kind of type a given `__Type` is.",
	}
	for _, k := range []TypeKind{
		TypeKindScalar, TypeKindObject, TypeKindInterface, TypeKindUnion,
		TypeKindEnum, TypeKindInputObject, TypeKindList, TypeKindNonNull,
	} {
		typeKind.Values = append(typeKind.Values, &EnumValue{Name: string(k)})
	}

	location := &Enum{
		Name:        "__DirectiveLocation",
		Description: "A Directive can be adjacent to many parts of the GraphQL language.",
	}
	for _, l := range directiveLocations {
		location.Values = append(location.Values, &EnumValue{Name: l})
	}

	schemaT := &Object{Name: "__Schema", Description: "A GraphQL Schema defines the capabilities of a GraphQL server."}
	typeT := &Object{Name: "__Type", Description: "The fundamental unit of any GraphQL Schema is the type."}
	fieldT := &Object{Name: "__Field", Description: "Object and Interface types are described by a list of Fields."}
	inputValueT := &Object{Name: "__InputValue", Description: "Arguments provided to Fields or Directives and the input fields of an InputObject."}
	enumValueT := &Object{Name: "__EnumValue", Description: "One possible value for a given Enum."}
	directiveT := &Object{Name: "__Directive", Description: "A Directive provides a way to describe alternate runtime execution."}

	typeList := NonNullOf(ListOf(NonNullOf(typeT)))
	includeDeprecated := func() []*Argument {
		return []*Argument{{Name: "includeDeprecated", Type: Boolean, DefaultValue: false}}
	}

	schemaT.Fields = []*Field{
		{Name: "description", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*Schema).Description), nil
		})},
		{Name: "types", Type: typeList, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			all := rc.Source.(*Schema).AllTypes()
			out := make([]any, len(all))
			for i, t := range all {
				out[i] = t
			}
			return out, nil
		})},
		{Name: "queryType", Type: NonNullOf(typeT), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Schema).Query, nil
		})},
		{Name: "mutationType", Type: typeT, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return nilIfNoObject(rc.Source.(*Schema).Mutation), nil
		})},
		{Name: "subscriptionType", Type: typeT, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return nilIfNoObject(rc.Source.(*Schema).Subscription), nil
		})},
		{Name: "directives", Type: NonNullOf(ListOf(NonNullOf(directiveT))), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			ds := rc.Source.(*Schema).Directives()
			out := make([]any, len(ds))
			for i, d := range ds {
				out[i] = d
			}
			return out, nil
		})},
	}

	typeT.Fields = []*Field{
		{Name: "kind", Type: NonNullOf(typeKind), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return string(KindOf(rc.Source.(Type))), nil
		})},
		{Name: "name", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			if nt, ok := rc.Source.(NamedType); ok {
				return nt.TypeName(), nil
			}
			return nil, nil
		})},
		{Name: "description", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			if nt, ok := rc.Source.(NamedType); ok {
				return optString(nt.TypeDescription()), nil
			}
			return nil, nil
		})},
		{Name: "specifiedByURL", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			if s, ok := rc.Source.(*Scalar); ok {
				return optString(s.SpecifiedByURL), nil
			}
			return nil, nil
		})},
		{Name: "fields", Type: ListOf(NonNullOf(fieldT)), Arguments: includeDeprecated(),
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				var fields []*Field
				switch t := rc.Source.(type) {
				case *Object:
					fields = t.Fields
				case *Interface:
					fields = t.Fields
				default:
					return nil, nil
				}
				all, _ := rc.Arg("includeDeprecated").(bool)
				out := []any{}
				for _, f := range fields {
					if all || !f.IsDeprecated() {
						out = append(out, f)
					}
				}
				return out, nil
			})},
		{Name: "interfaces", Type: ListOf(NonNullOf(typeT)), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			var its []*Interface
			switch t := rc.Source.(type) {
			case *Object:
				its = t.ImplementedInterfaces()
			case *Interface:
				its = t.ImplementedInterfaces()
			default:
				return nil, nil
			}
			out := make([]any, len(its))
			for i, it := range its {
				out[i] = it
			}
			return out, nil
		})},
		{Name: "possibleTypes", Type: ListOf(NonNullOf(typeT)), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			nt, ok := rc.Source.(NamedType)
			if !ok || !IsAbstract(nt) {
				return nil, nil
			}
			objs := rc.Schema.PossibleTypes(nt)
			out := make([]any, len(objs))
			for i, o := range objs {
				out[i] = o
			}
			return out, nil
		})},
		{Name: "enumValues", Type: ListOf(NonNullOf(enumValueT)), Arguments: includeDeprecated(),
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				e, ok := rc.Source.(*Enum)
				if !ok {
					return nil, nil
				}
				all, _ := rc.Arg("includeDeprecated").(bool)
				out := []any{}
				for _, ev := range e.Values {
					if all || !ev.IsDeprecated() {
						out = append(out, ev)
					}
				}
				return out, nil
			})},
		{Name: "inputFields", Type: ListOf(NonNullOf(inputValueT)), Arguments: includeDeprecated(),
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				io, ok := rc.Source.(*InputObject)
				if !ok {
					return nil, nil
				}
				return argumentList(io.Fields, rc), nil
			})},
		{Name: "ofType", Type: typeT, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			switch t := rc.Source.(type) {
			case *List:
				return t.OfType, nil
			case *NonNull:
				return t.OfType, nil
			}
			return nil, nil
		})},
	}

	fieldT.Fields = []*Field{
		{Name: "name", Type: NonNullOf(String), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Field).Name, nil
		})},
		{Name: "description", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*Field).Description), nil
		})},
		{Name: "args", Type: NonNullOf(ListOf(NonNullOf(inputValueT))), Arguments: includeDeprecated(),
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				return argumentList(rc.Source.(*Field).Arguments, rc), nil
			})},
		{Name: "type", Type: NonNullOf(typeT), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Field).Type, nil
		})},
		{Name: "isDeprecated", Type: NonNullOf(Boolean), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Field).IsDeprecated(), nil
		})},
		{Name: "deprecationReason", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*Field).DeprecationReason), nil
		})},
	}

	inputValueT.Fields = []*Field{
		{Name: "name", Type: NonNullOf(String), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Argument).Name, nil
		})},
		{Name: "description", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*Argument).Description), nil
		})},
		{Name: "type", Type: NonNullOf(typeT), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Argument).Type, nil
		})},
		{Name: "defaultValue", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			a := rc.Source.(*Argument)
			if a.DefaultValue == nil {
				return nil, nil
			}
			return FormatValue(a.DefaultValue, a.Type), nil
		})},
		{Name: "isDeprecated", Type: NonNullOf(Boolean), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Argument).IsDeprecated(), nil
		})},
		{Name: "deprecationReason", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*Argument).DeprecationReason), nil
		})},
	}

	enumValueT.Fields = []*Field{
		{Name: "name", Type: NonNullOf(String), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*EnumValue).Name, nil
		})},
		{Name: "description", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*EnumValue).Description), nil
		})},
		{Name: "isDeprecated", Type: NonNullOf(Boolean), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*EnumValue).IsDeprecated(), nil
		})},
		{Name: "deprecationReason", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*EnumValue).DeprecationReason), nil
		})},
	}

	directiveT.Fields = []*Field{
		{Name: "name", Type: NonNullOf(String), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Directive).Name, nil
		})},
		{Name: "description", Type: String, Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return optString(rc.Source.(*Directive).Description), nil
		})},
		{Name: "isRepeatable", Type: NonNullOf(Boolean), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			return rc.Source.(*Directive).Repeatable, nil
		})},
		{Name: "locations", Type: NonNullOf(ListOf(NonNullOf(location))), Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
			locs := rc.Source.(*Directive).Locations
			out := make([]any, len(locs))
			for i, l := range locs {
				out[i] = l
			}
			return out, nil
		})},
		{Name: "args", Type: NonNullOf(ListOf(NonNullOf(inputValueT))), Arguments: includeDeprecated(),
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				return argumentList(rc.Source.(*Directive).Arguments, rc), nil
			})},
	}

	return &introspection{
		types: []NamedType{schemaT, typeT, fieldT, inputValueT, enumValueT, directiveT, typeKind, location},
		schemaField: &Field{
			Name:        "__schema",
			Description: "Access the current type schema of this server.",
			Type:        NonNullOf(schemaT),
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				return rc.Schema, nil
			}),
		},
		typeField: &Field{
			Name:        "__type",
			Description: "Request the type information of a single type.",
			Type:        typeT,
			Arguments:   []*Argument{{Name: "name", Type: NonNullOf(String)}},
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				name, _ := rc.Arg("name").(string)
				if t := rc.Schema.Type(name); t != nil {
					return t, nil
				}
				return nil, nil
			}),
		},
		typeNameField: &Field{
			Name:        "__typename",
			Description: "The name of the current Object type at runtime.",
			Type:        NonNullOf(String),
			Resolver: ResolverFunc(func(rc *ResolveContext) (any, error) {
				return rc.ParentType.Name, nil
			}),
		},
	}
}

func argumentList(args []*Argument, rc *ResolveContext) []any {
	all, _ := rc.Arg("includeDeprecated").(bool)
	out := []any{}
	for _, a := range args {
		if all || !a.IsDeprecated() {
			out = append(out, a)
		}
	}
	return out
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfNoObject(o *Object) any {
	if o == nil {
		return nil
	}
	return o
}
