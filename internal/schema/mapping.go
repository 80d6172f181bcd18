package schema

import (
	"math/big"
	"net/url"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// TypeMappingProvider maps a Go type to a named GraphQL type. Providers
// return nil when they do not know the type. input is true when the type
// appears in an argument or input field position.
type TypeMappingProvider interface {
	MapType(goType reflect.Type, input bool) NamedType
}

// TypeMappingFunc adapts a function to TypeMappingProvider.
type TypeMappingFunc func(goType reflect.Type, input bool) NamedType

func (f TypeMappingFunc) MapType(goType reflect.Type, input bool) NamedType {
	return f(goType, input)
}

// TypeResolver resolves Go types eagerly while a TypeConstructor runs.
type TypeResolver interface {
	// Resolve returns the GraphQL type for goType, wrapping it the same way
	// field GoTypes are wrapped.
	Resolve(goType reflect.Type, input bool) (Type, error)
}

// TypeConstructor builds the GraphQL type of a Go type on first use. A
// constructor that resolves its own Go type, directly or through other
// constructors, fails with ErrLoopDetected. Use Field.GoType or a
// TypeReference for legitimately recursive shapes.
type TypeConstructor func(r TypeResolver) (NamedType, error)

// EnumValuer is implemented by Go types that map to an enum automatically.
// The method is called on the zero value.
type EnumValuer interface {
	EnumValues() []*EnumValue
}

// Describer optionally supplies a description for auto-mapped enums.
type Describer interface {
	Description() string
}

var enumValuerType = reflect.TypeOf((*EnumValuer)(nil)).Elem()

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
	bigIntType   = reflect.TypeOf(big.Int{})
	urlType      = reflect.TypeOf(url.URL{})
)

// builtinScalarMappings maps Go primitives and well known library types to
// built-in scalars. Each schema build gets its own set of instances.
type builtinScalarMappings struct {
	byName map[string]*Scalar
}

func newBuiltinScalarMappings() *builtinScalarMappings {
	m := &builtinScalarMappings{byName: map[string]*Scalar{
		"Int": Int, "Float": Float, "String": String, "Boolean": Boolean, "ID": ID,
	}}
	for _, s := range BuiltinScalars() {
		if _, ok := m.byName[s.Name]; !ok {
			m.byName[s.Name] = s
		}
	}
	return m
}

func (m *builtinScalarMappings) MapType(t reflect.Type, _ bool) NamedType {
	switch t {
	case timeType:
		return m.byName["DateTime"]
	case durationType:
		return m.byName["Seconds"]
	case uuidType:
		return m.byName["Guid"]
	case bigIntType:
		return m.byName["BigInt"]
	case urlType:
		return m.byName["Uri"]
	}
	if t.Implements(enumValuerType) {
		return nil
	}
	switch t.Kind() {
	case reflect.String:
		return m.byName["String"]
	case reflect.Bool:
		return m.byName["Boolean"]
	case reflect.Int, reflect.Int32:
		return m.byName["Int"]
	case reflect.Int64:
		return m.byName["Long"]
	case reflect.Int16:
		return m.byName["Short"]
	case reflect.Int8:
		return m.byName["SByte"]
	case reflect.Uint8:
		return m.byName["Byte"]
	case reflect.Uint16:
		return m.byName["UShort"]
	case reflect.Uint32:
		return m.byName["UInt"]
	case reflect.Uint, reflect.Uint64:
		return m.byName["ULong"]
	case reflect.Float32, reflect.Float64:
		return m.byName["Float"]
	}
	return nil
}

// enumMappings creates an Enum for every Go type implementing EnumValuer.
type enumMappings struct{}

func (enumMappings) MapType(t reflect.Type, _ bool) NamedType {
	if !t.Implements(enumValuerType) {
		return nil
	}
	zero := reflect.Zero(t).Interface()
	e := &Enum{Name: t.Name(), Values: zero.(EnumValuer).EnumValues()}
	if d, ok := zero.(Describer); ok {
		e.Description = d.Description()
	}
	return e
}
