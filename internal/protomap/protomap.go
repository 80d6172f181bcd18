// Package protomap maps generated protobuf Go types to GraphQL types.
//
// A Provider is installed with schema.AddTypeMappingProvider. Message types
// become objects in output positions and input objects in input positions;
// proto enums become enums whose internal values are the generated Go enum
// values. Types are read from protoreflect descriptors, so nested and
// recursive messages are mapped without further registration.
//
// Field names are the lower camel case form of the proto field names.
// Fields without presence are non-null, repeated fields are non-null lists
// of non-null items, and bytes travel as base64 strings. Map fields are not
// exposed.
package protomap

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	schema "github.com/hanpama/graphexec/internal/schema"
)

var (
	messageType = reflect.TypeOf((*proto.Message)(nil)).Elem()
	enumType    = reflect.TypeOf((*protoreflect.Enum)(nil)).Elem()
)

// Option configures a Provider.
type Option func(*Provider)

// WithPrefix prepends prefix to every generated type name.
func WithPrefix(prefix string) Option { return func(p *Provider) { p.prefix = prefix } }

// WithTypes sets the registry used to find Go enum types for enum
// descriptors. protoregistry.GlobalTypes is used by default.
func WithTypes(types *protoregistry.Types) Option { return func(p *Provider) { p.types = types } }

// Provider implements schema.TypeMappingProvider for protobuf types. One
// provider must be used per schema.
type Provider struct {
	prefix string
	types  *protoregistry.Types

	mu      sync.Mutex
	outputs map[protoreflect.FullName]*schema.Object
	inputs  map[protoreflect.FullName]*schema.InputObject
	enums   map[protoreflect.FullName]*schema.Enum
	scalars map[string]*schema.Scalar
}

func New(opts ...Option) *Provider {
	p := &Provider{
		types:   protoregistry.GlobalTypes,
		outputs: make(map[protoreflect.FullName]*schema.Object),
		inputs:  make(map[protoreflect.FullName]*schema.InputObject),
		enums:   make(map[protoreflect.FullName]*schema.Enum),
		scalars: make(map[string]*schema.Scalar),
	}
	for _, s := range schema.BuiltinScalars() {
		p.scalars[s.Name] = s
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MapType returns the object, input object or enum for a generated message
// or enum Go type, and nil for anything else.
func (p *Provider) MapType(t reflect.Type, input bool) schema.NamedType {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t.Implements(enumType) {
		ed := reflect.Zero(t).Interface().(protoreflect.Enum).Descriptor()
		return p.enum(ed)
	}
	ptr := t
	if t.Kind() != reflect.Pointer {
		ptr = reflect.PointerTo(t)
	}
	if !ptr.Implements(messageType) || ptr.Elem().Kind() != reflect.Struct {
		return nil
	}
	md := reflect.New(ptr.Elem()).Interface().(proto.Message).ProtoReflect().Descriptor()
	if input {
		return p.input(md)
	}
	return p.output(md)
}

// TypeName is the GraphQL name of a message or enum: its name below the
// proto package with nesting joined by underscores.
func (p *Provider) TypeName(d protoreflect.Descriptor) string {
	full := string(d.FullName())
	if pkg := string(d.ParentFile().Package()); pkg != "" {
		full = strings.TrimPrefix(full, pkg+".")
	}
	return p.prefix + strings.ReplaceAll(full, ".", "_")
}

func fieldName(fd protoreflect.FieldDescriptor) string {
	return strcase.ToLowerCamel(string(fd.Name()))
}

func (p *Provider) output(md protoreflect.MessageDescriptor) *schema.Object {
	if obj, ok := p.outputs[md.FullName()]; ok {
		return obj
	}
	full := md.FullName()
	obj := &schema.Object{
		Name: p.TypeName(md),
		IsTypeOf: func(v any) bool {
			m, ok := v.(proto.Message)
			return ok && m.ProtoReflect().Descriptor().FullName() == full
		},
	}
	// Registered before the fields so recursive messages find it.
	p.outputs[full] = obj

	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.IsMap() {
			continue
		}
		t := p.fieldType(fd, false)
		obj.Fields = append(obj.Fields, &schema.Field{
			Name:     fieldName(fd),
			Type:     t,
			Resolver: p.fieldResolver(fd),
		})
	}
	if len(obj.Fields) == 0 {
		obj.Fields = append(obj.Fields, &schema.Field{
			Name:     "_empty",
			Type:     schema.Boolean,
			Resolver: schema.ResolverFunc(func(*schema.ResolveContext) (any, error) { return nil, nil }),
		})
	}
	return obj
}

func (p *Provider) input(md protoreflect.MessageDescriptor) *schema.InputObject {
	if in, ok := p.inputs[md.FullName()]; ok {
		return in
	}
	in := &schema.InputObject{Name: p.TypeName(md) + "Input"}
	p.inputs[md.FullName()] = in

	byName := make(map[string]protoreflect.FieldDescriptor)
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.IsMap() {
			continue
		}
		name := fieldName(fd)
		byName[name] = fd
		// Input fields are optional; unset fields keep their proto default.
		in.Fields = append(in.Fields, &schema.Argument{Name: name, Type: schema.Nullable(p.fieldType(fd, true))})
	}
	in.Parse = func(values map[string]any) (any, error) {
		msg, err := p.newMessage(md)
		if err != nil {
			return nil, err
		}
		m := msg.ProtoReflect()
		for name, v := range values {
			fd, ok := byName[name]
			if !ok || v == nil {
				continue
			}
			if err := p.set(m, fd, v); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", in.Name, name, err)
			}
		}
		return msg, nil
	}
	return in
}

func (p *Provider) newMessage(md protoreflect.MessageDescriptor) (proto.Message, error) {
	mt, err := p.types.FindMessageByName(md.FullName())
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", md.FullName(), err)
	}
	return mt.New().Interface(), nil
}

func (p *Provider) enum(ed protoreflect.EnumDescriptor) *schema.Enum {
	if e, ok := p.enums[ed.FullName()]; ok {
		return e
	}
	e := &schema.Enum{Name: p.TypeName(ed)}
	values := ed.Values()
	for i := 0; i < values.Len(); i++ {
		vd := values.Get(i)
		e.Values = append(e.Values, &schema.EnumValue{
			Name:  string(vd.Name()),
			Value: p.enumValue(ed, vd.Number()),
		})
	}
	p.enums[ed.FullName()] = e
	return e
}

// enumValue is the generated Go enum value for n, or n itself when the
// enum has no registered Go type.
func (p *Provider) enumValue(ed protoreflect.EnumDescriptor, n protoreflect.EnumNumber) any {
	if et, err := p.types.FindEnumByName(ed.FullName()); err == nil {
		return et.New(n)
	}
	return n
}

func (p *Provider) fieldType(fd protoreflect.FieldDescriptor, input bool) schema.Type {
	var item schema.Type
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if input {
			item = p.input(fd.Message())
		} else {
			item = p.output(fd.Message())
		}
	case protoreflect.EnumKind:
		item = p.enum(fd.Enum())
	default:
		item = p.scalarFor(fd.Kind())
	}
	if fd.IsList() {
		return schema.NonNullOf(schema.ListOf(schema.NonNullOf(item)))
	}
	if fd.HasPresence() {
		return item
	}
	return schema.NonNullOf(item)
}

func (p *Provider) scalarFor(k protoreflect.Kind) *schema.Scalar {
	switch k {
	case protoreflect.BoolKind:
		return schema.Boolean
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return schema.Int
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return p.scalars["Long"]
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return p.scalars["UInt"]
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return p.scalars["ULong"]
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return schema.Float
	}
	// String and bytes.
	return schema.String
}

func (p *Provider) fieldResolver(fd protoreflect.FieldDescriptor) schema.FieldResolver {
	return schema.ResolverFunc(func(rc *schema.ResolveContext) (any, error) {
		src, ok := rc.Source.(proto.Message)
		if !ok {
			return nil, fmt.Errorf("expected a proto message for field '%s', got %T", rc.FieldName, rc.Source)
		}
		m := src.ProtoReflect()
		if !m.IsValid() {
			return nil, nil
		}
		if fd.HasPresence() && !fd.IsList() && !m.Has(fd) {
			return nil, nil
		}
		v := m.Get(fd)
		if fd.IsList() {
			l := v.List()
			out := make([]any, l.Len())
			for i := range out {
				out[i] = p.toGo(fd, l.Get(i))
			}
			return out, nil
		}
		return p.toGo(fd, v), nil
	})
}

func (p *Provider) toGo(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return v.Message().Interface()
	case protoreflect.EnumKind:
		return p.enumValue(fd.Enum(), v.Enum())
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	case protoreflect.FloatKind:
		return float64(v.Float())
	}
	return v.Interface()
}

func (p *Provider) set(m protoreflect.Message, fd protoreflect.FieldDescriptor, v any) error {
	if fd.IsList() {
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected a list, got %T", v)
		}
		l := m.Mutable(fd).List()
		for i, item := range items {
			pv, err := p.fromGo(fd, item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			l.Append(pv)
		}
		return nil
	}
	pv, err := p.fromGo(fd, v)
	if err != nil {
		return err
	}
	m.Set(fd, pv)
	return nil
}

func (p *Provider) fromGo(fd protoreflect.FieldDescriptor, v any) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		msg, ok := v.(proto.Message)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected a message, got %T", v)
		}
		return protoreflect.ValueOfMessage(msg.ProtoReflect()), nil
	case protoreflect.EnumKind:
		switch e := v.(type) {
		case protoreflect.Enum:
			return protoreflect.ValueOfEnum(e.Number()), nil
		case protoreflect.EnumNumber:
			return protoreflect.ValueOfEnum(e), nil
		}
		return protoreflect.Value{}, fmt.Errorf("expected an enum value, got %T", v)
	case protoreflect.BoolKind:
		b, ok := v.(bool)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected a boolean, got %T", v)
		}
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.StringKind:
		s, ok := v.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected a string, got %T", v)
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		s, ok := v.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected a base64 string, got %T", v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfBytes(b), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		f, ok := v.(float64)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected a float, got %T", v)
		}
		if fd.Kind() == protoreflect.FloatKind {
			return protoreflect.ValueOfFloat32(float32(f)), nil
		}
		return protoreflect.ValueOfFloat64(f), nil
	}

	n := reflect.ValueOf(v)
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if n.CanInt() {
			return protoreflect.ValueOfInt32(int32(n.Int())), nil
		}
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if n.CanInt() {
			return protoreflect.ValueOfInt64(n.Int()), nil
		}
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		if n.CanUint() {
			return protoreflect.ValueOfUint32(uint32(n.Uint())), nil
		}
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if n.CanUint() {
			return protoreflect.ValueOfUint64(n.Uint()), nil
		}
	}
	return protoreflect.Value{}, fmt.Errorf("unexpected %T for a %s field", v, fd.Kind())
}
