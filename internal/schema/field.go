package schema

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
	language "github.com/hanpama/graphexec/internal/language"
)

// Field is an output field owned by an Object or Interface.
type Field struct {
	Name              string
	Description       string
	DeprecationReason string
	// Type is the declared type. It may be left nil when GoType is set; the
	// registry then derives it through the type mapping chain.
	Type      Type
	GoType    reflect.Type
	Arguments []*Argument
	// Resolver produces the field value. DefaultResolver is used when nil.
	Resolver FieldResolver
	// Subscriber produces the event stream of a subscription root field.
	Subscriber EventStreamResolver
	// Async marks resolvers that block on I/O. Concurrent strategies run
	// them as separate tasks and resolve everything else inline.
	Async bool
}

// Argument is a field argument, directive argument or input object field.
type Argument struct {
	Name              string
	Description       string
	DeprecationReason string
	Type              Type
	GoType            reflect.Type
	// DefaultValue is an internal value. A nil DefaultValue means the
	// argument has no default.
	DefaultValue any
}

func (f *Field) IsDeprecated() bool    { return f.DeprecationReason != "" }
func (a *Argument) IsDeprecated() bool { return a.DeprecationReason != "" }
func (e *EnumValue) IsDeprecated() bool {
	return e.DeprecationReason != ""
}

// Argument returns the argument definition called name.
func (f *Field) Argument(name string) *Argument {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ResolveContext is handed to resolvers.
type ResolveContext struct {
	Context         context.Context
	FieldName       string
	FieldAST        *language.Field
	FieldASTs       []*language.Field
	FieldDefinition *Field
	ReturnType      Type
	ParentType      *Object
	Arguments       map[string]any
	Source          any
	Schema          *Schema
	Document        *language.QueryDocument
	Operation       *language.OperationDefinition
	Variables       map[string]any
	Path            []any
	UserContext     any
	// SubFields lists the response keys selected under this field when its
	// type is a concrete object. Abstract and leaf fields leave it nil.
	SubFields []string
}

// Arg returns the coerced argument value, or nil.
func (rc *ResolveContext) Arg(name string) any {
	return rc.Arguments[name]
}

// HasArg reports whether the argument was provided or defaulted.
func (rc *ResolveContext) HasArg(name string) bool {
	_, ok := rc.Arguments[name]
	return ok
}

// FieldResolver produces the value of a field.
type FieldResolver interface {
	Resolve(rc *ResolveContext) (any, error)
}

// ResolverFunc adapts a function to FieldResolver.
type ResolverFunc func(rc *ResolveContext) (any, error)

func (f ResolverFunc) Resolve(rc *ResolveContext) (any, error) { return f(rc) }

// EventStreamResolver produces the source events of a subscription field.
// The channel is closed by the producer when the stream ends; producers
// must also stop when rc.Context is done.
type EventStreamResolver interface {
	Subscribe(rc *ResolveContext) (<-chan any, error)
}

type SubscriberFunc func(rc *ResolveContext) (<-chan any, error)

func (f SubscriberFunc) Subscribe(rc *ResolveContext) (<-chan any, error) { return f(rc) }

// Deferred is a resolver result whose value is produced later, typically by
// a batching data loader. Strategies collect deferred results of a level
// and drain them together.
type Deferred interface {
	GetResult(ctx context.Context) (any, error)
}

// DefaultResolver reads the field from the source value by name: a map
// key, an exported struct field (matching a `graphql` tag first), or a
// method without arguments.
var DefaultResolver FieldResolver = ResolverFunc(func(rc *ResolveContext) (any, error) {
	return PropertyValue(rc.Source, rc.FieldName)
})

type accessorKey struct {
	t    reflect.Type
	name string
}

type accessor func(v reflect.Value) (any, error)

var accessors sync.Map // accessorKey -> accessor (nil when absent)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// PropertyValue returns the member name of source, or nil if there is no
// such member.
func PropertyValue(source any, name string) (any, error) {
	switch src := source.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return src[name], nil
	}
	rv := reflect.ValueOf(source)
	key := accessorKey{t: rv.Type(), name: name}
	cached, ok := accessors.Load(key)
	if !ok {
		cached, _ = accessors.LoadOrStore(key, buildAccessor(rv.Type(), name))
	}
	acc := cached.(accessor)
	if acc == nil {
		return nil, nil
	}
	return acc(rv)
}

func buildAccessor(t reflect.Type, name string) accessor {
	if m, ok := findMethod(t, name); ok {
		return m
	}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	deref := func(v reflect.Value) (reflect.Value, bool) {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return v, false
			}
			v = v.Elem()
		}
		return v, true
	}
	switch base.Kind() {
	case reflect.Map:
		if base.Key().Kind() != reflect.String {
			return nil
		}
		return func(v reflect.Value) (any, error) {
			v, ok := deref(v)
			if !ok {
				return nil, nil
			}
			item := v.MapIndex(reflect.ValueOf(name).Convert(base.Key()))
			if !item.IsValid() {
				return nil, nil
			}
			return item.Interface(), nil
		}
	case reflect.Struct:
		idx, ok := findStructField(base, name)
		if !ok {
			return nil
		}
		return func(v reflect.Value) (any, error) {
			v, ok := deref(v)
			if !ok {
				return nil, nil
			}
			return v.FieldByIndex(idx).Interface(), nil
		}
	}
	return nil
}

func findStructField(t reflect.Type, name string) ([]int, bool) {
	goName := strcase.ToCamel(name)
	var fallback []int
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if tag, ok := f.Tag.Lookup("graphql"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == name {
				return f.Index, true
			}
			continue
		}
		if f.Name == goName {
			return f.Index, true
		}
		if fallback == nil && strings.EqualFold(f.Name, name) {
			fallback = f.Index
		}
	}
	return fallback, fallback != nil
}

// findMethod matches exported methods without parameters returning a value,
// or a value and an error.
func findMethod(t reflect.Type, name string) (accessor, bool) {
	goName := strcase.ToCamel(name)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.Name != goName && !strings.EqualFold(m.Name, name) {
			continue
		}
		mt := m.Type
		if mt.NumIn() != 1 {
			continue
		}
		switch {
		case mt.NumOut() == 1:
			idx := m.Index
			return func(v reflect.Value) (any, error) {
				return v.Method(idx).Call(nil)[0].Interface(), nil
			}, true
		case mt.NumOut() == 2 && mt.Out(1) == errorType:
			idx := m.Index
			return func(v reflect.Value) (any, error) {
				out := v.Method(idx).Call(nil)
				if err, _ := out[1].Interface().(error); err != nil {
					return nil, err
				}
				return out[0].Interface(), nil
			}, true
		}
	}
	return nil, false
}
