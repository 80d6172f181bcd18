package executor

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
)

// typeFromAST maps a variable type annotation onto the schema. It returns
// nil when the named type does not exist.
func typeFromAST(s *schema.Schema, t *language.Type) schema.Type {
	if t == nil {
		return nil
	}
	var inner schema.Type
	if t.Elem != nil {
		elem := typeFromAST(s, t.Elem)
		if elem == nil {
			return nil
		}
		inner = schema.ListOf(elem)
	} else {
		named := s.Type(t.NamedType)
		if named == nil {
			return nil
		}
		inner = named
	}
	if t.NonNull {
		return schema.NonNullOf(inner)
	}
	return inner
}

// GetVariableValues coerces the raw variable map of a request against the
// operation's variable definitions. Variables without a definition are
// dropped.
func GetVariableValues(s *schema.Schema, op *language.OperationDefinition, raw map[string]any) (map[string]any, *ExecutionError) {
	coerced := make(map[string]any, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		t := typeFromAST(s, def.Type)
		if t == nil || !schema.IsInputType(t) {
			return nil, variableError(def, "Unknown input type '%s'.", def.Type.String())
		}
		value, provided := raw[def.Variable]
		if !provided {
			if def.DefaultValue != nil {
				v, err := CoerceValue(t, def.DefaultValue, nil)
				if err != nil {
					return nil, variableError(def, "%s", err.Error())
				}
				coerced[def.Variable] = v
				continue
			}
			if schema.IsNonNull(t) {
				return nil, variableError(def, "No value provided for a non-null variable.")
			}
			continue
		}
		v, err := coerceInput(t, value)
		if err != nil {
			return nil, variableError(def, "%s", err.Error())
		}
		coerced[def.Variable] = v
	}
	return coerced, nil
}

func variableError(def *language.VariableDefinition, format string, args ...any) *ExecutionError {
	e := newCodedError(CodeInvalidValue, "Variable '$%s' is invalid. %s", def.Variable, fmt.Sprintf(format, args...))
	if def.Position != nil {
		e.AddLocation(def.Position.Line, def.Position.Column)
	}
	return e
}

// GetArgumentValues coerces the arguments of one field occurrence. Absent
// arguments take their default; absent arguments without a default are
// left out of the map.
func GetArgumentValues(defs []*schema.Argument, args language.ArgumentList, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(defs))
	for _, def := range defs {
		arg := args.ForName(def.Name)
		if arg == nil || (arg.Value.Kind == language.Variable && !hasVariable(vars, arg.Value.Raw)) {
			if def.DefaultValue != nil {
				out[def.Name] = def.DefaultValue
				continue
			}
			if schema.IsNonNull(def.Type) {
				return nil, fmt.Errorf("Argument '%s' of required type '%s' was not provided.", def.Name, def.Type)
			}
			continue
		}
		v, err := CoerceValue(def.Type, arg.Value, vars)
		if err != nil {
			return nil, fmt.Errorf("Argument '%s' has invalid value. %w", def.Name, err)
		}
		out[def.Name] = v
	}
	return out, nil
}

func hasVariable(vars map[string]any, name string) bool {
	_, ok := vars[name]
	return ok
}

// CoerceValue converts a query literal into the internal value of t.
// Variables inside the literal are taken from vars, which must already be
// coerced.
func CoerceValue(t schema.Type, v *language.Value, vars map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if v.Kind == language.Variable {
		value, ok := vars[v.Raw]
		if (!ok || value == nil) && schema.IsNonNull(t) {
			return nil, fmt.Errorf("Expected non-null value for variable '$%s'.", v.Raw)
		}
		return value, nil
	}

	if nn, ok := t.(*schema.NonNull); ok {
		if v.Kind == language.NullValue {
			return nil, fmt.Errorf("Expected non-null value of type '%s', found null.", nn)
		}
		return CoerceValue(nn.OfType, v, vars)
	}
	if v.Kind == language.NullValue {
		return nil, nil
	}

	switch tt := t.(type) {
	case *schema.List:
		if v.Kind != language.ListValue {
			item, err := CoerceValue(tt.OfType, v, vars)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(v.Children))
		for i, child := range v.Children {
			item, err := CoerceValue(tt.OfType, child.Value, vars)
			if err != nil {
				return nil, fmt.Errorf("In element #%d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil

	case *schema.InputObject:
		if v.Kind != language.ObjectValue {
			return nil, fmt.Errorf("Expected object value of type '%s', found %s.", tt.Name, v.String())
		}
		fields := make(map[string]*language.Value, len(v.Children))
		for _, child := range v.Children {
			if tt.FieldByName(child.Name) == nil {
				return nil, fmt.Errorf("Unknown field '%s' on input type '%s'.", child.Name, tt.Name)
			}
			fields[child.Name] = child.Value
		}
		out := make(map[string]any, len(tt.Fields))
		for _, def := range tt.Fields {
			lit, ok := fields[def.Name]
			if ok && lit.Kind == language.Variable && !hasVariable(vars, lit.Raw) {
				ok = false
			}
			if !ok {
				if err := applyFieldDefault(out, def, tt); err != nil {
					return nil, err
				}
				continue
			}
			fv, err := CoerceValue(def.Type, lit, vars)
			if err != nil {
				return nil, fmt.Errorf("In field '%s': %w", def.Name, err)
			}
			out[def.Name] = fv
		}
		return parseInputObject(tt, out)

	case *schema.Enum:
		if v.Kind != language.EnumValue {
			return nil, fmt.Errorf("Expected enum value of type '%s', found %s.", tt.Name, v.String())
		}
		parsed, ok := tt.ParseValue(v.Raw)
		if !ok {
			return nil, fmt.Errorf("Value '%s' is not defined in enum '%s'.", v.Raw, tt.Name)
		}
		return parsed, nil

	case *schema.Scalar:
		parsed, ok := tt.ParseLiteral(v)
		if !ok {
			return nil, fmt.Errorf("Expected type '%s', found %s.", tt.Name, v.String())
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("Type '%s' is not an input type.", t)
}

// coerceInput converts an external value, such as a decoded JSON variable,
// into the internal value of t.
func coerceInput(t schema.Type, value any) (any, error) {
	if nn, ok := t.(*schema.NonNull); ok {
		if value == nil {
			return nil, fmt.Errorf("Expected non-null value of type '%s', found null.", nn)
		}
		return coerceInput(nn.OfType, value)
	}
	if value == nil {
		return nil, nil
	}

	switch tt := t.(type) {
	case *schema.List:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			item, err := coerceInput(tt.OfType, value)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			item, err := coerceInput(tt.OfType, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("In element #%d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil

	case *schema.InputObject:
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("Expected object value of type '%s', found %T.", tt.Name, value)
		}
		for _, name := range sortedKeys(m) {
			if tt.FieldByName(name) == nil {
				return nil, fmt.Errorf("Unknown field '%s' on input type '%s'.", name, tt.Name)
			}
		}
		out := make(map[string]any, len(tt.Fields))
		for _, def := range tt.Fields {
			raw, ok := m[def.Name]
			if !ok {
				if err := applyFieldDefault(out, def, tt); err != nil {
					return nil, err
				}
				continue
			}
			fv, err := coerceInput(def.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("In field '%s': %w", def.Name, err)
			}
			out[def.Name] = fv
		}
		return parseInputObject(tt, out)

	case *schema.Enum:
		parsed, ok := tt.ParseValue(value)
		if !ok {
			return nil, fmt.Errorf("Value '%v' is not defined in enum '%s'.", value, tt.Name)
		}
		return parsed, nil

	case *schema.Scalar:
		parsed, ok := tt.ParseValue(value)
		if !ok {
			return nil, fmt.Errorf("Expected type '%s', found %s.", tt.Name, describeValue(value))
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("Type '%s' is not an input type.", t)
}

func applyFieldDefault(out map[string]any, def *schema.Argument, owner *schema.InputObject) error {
	if def.DefaultValue != nil {
		out[def.Name] = def.DefaultValue
		return nil
	}
	if schema.IsNonNull(def.Type) {
		return fmt.Errorf("Field '%s.%s' of required type '%s' was not provided.", owner.Name, def.Name, def.Type)
	}
	return nil
}

func parseInputObject(t *schema.InputObject, fields map[string]any) (any, error) {
	if t.Parse == nil {
		return fields, nil
	}
	return t.Parse(fields)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describeValue(v any) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case fmt.Stringer:
		return x.String()
	}
	s := fmt.Sprintf("%v", v)
	return strings.TrimSpace(s)
}
