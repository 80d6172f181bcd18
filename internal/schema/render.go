package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var standardScalars = map[string]bool{"Int": true, "Float": true, "String": true, "Boolean": true, "ID": true}

// Render produces SDL for an initialized schema. Types and directives are
// sorted by name; introspection types, the standard scalars and the
// built-in directives are left out.
func Render(s *Schema) string {
	if s == nil || s.types == nil {
		return ""
	}
	var b strings.Builder

	if needsSchemaBlock(s) {
		renderDescription(&b, "", s.Description)
		b.WriteString("schema {\n")
		b.WriteString("  query: " + s.Query.Name + "\n")
		if s.Mutation != nil {
			b.WriteString("  mutation: " + s.Mutation.Name + "\n")
		}
		if s.Subscription != nil {
			b.WriteString("  subscription: " + s.Subscription.Name + "\n")
		}
		b.WriteString("}\n\n")
	}

	for _, t := range s.AllTypes() {
		if s.IsIntrospectionType(t) || standardScalars[t.TypeName()] {
			continue
		}
		switch v := t.(type) {
		case *Scalar:
			renderScalar(&b, v)
		case *Enum:
			renderEnum(&b, v)
		case *InputObject:
			renderInputObject(&b, v)
		case *Object:
			renderFielded(&b, "type", v.Name, v.Description, v.ImplementedInterfaces(), v.Fields)
		case *Interface:
			renderFielded(&b, "interface", v.Name, v.Description, v.ImplementedInterfaces(), v.Fields)
		case *Union:
			renderUnion(&b, s, v)
		default:
			panic("unreachable")
		}
	}

	for _, d := range s.Directives() {
		if d.IsBuiltin() {
			continue
		}
		renderDirective(&b, d)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func needsSchemaBlock(s *Schema) bool {
	if s.Description != "" || s.Query.Name != "Query" {
		return true
	}
	if s.Mutation != nil && s.Mutation.Name != "Mutation" {
		return true
	}
	return s.Subscription != nil && s.Subscription.Name != "Subscription"
}

func renderDescription(b *strings.Builder, indent, desc string) {
	if desc == "" {
		return
	}
	b.WriteString(indent)
	b.WriteString(`"""`)
	b.WriteString("\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(indent)
	b.WriteString(`"""`)
	b.WriteString("\n")
}

func renderDeprecated(b *strings.Builder, reason string) {
	if reason == "" {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "No longer supported" {
		b.WriteString("(reason: ")
		b.WriteString(strconv.Quote(reason))
		b.WriteString(")")
	}
}

func renderScalar(b *strings.Builder, t *Scalar) {
	renderDescription(b, "", t.Description)
	b.WriteString("scalar ")
	b.WriteString(t.Name)
	if t.SpecifiedByURL != "" {
		b.WriteString(" @specifiedBy(url: ")
		b.WriteString(strconv.Quote(t.SpecifiedByURL))
		b.WriteString(")")
	}
	b.WriteString("\n\n")
}

func renderEnum(b *strings.Builder, t *Enum) {
	renderDescription(b, "", t.Description)
	b.WriteString("enum ")
	b.WriteString(t.Name)
	b.WriteString(" {\n")
	for _, v := range t.Values {
		renderDescription(b, "  ", v.Description)
		b.WriteString("  ")
		b.WriteString(v.Name)
		renderDeprecated(b, v.DeprecationReason)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderInputObject(b *strings.Builder, t *InputObject) {
	renderDescription(b, "", t.Description)
	b.WriteString("input ")
	b.WriteString(t.Name)
	b.WriteString(" {\n")
	for _, f := range t.Fields {
		renderDescription(b, "  ", f.Description)
		b.WriteString("  ")
		renderArgument(b, f)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderFielded(b *strings.Builder, keyword, name, desc string, interfaces []*Interface, fields []*Field) {
	renderDescription(b, "", desc)
	b.WriteString(keyword)
	b.WriteString(" ")
	b.WriteString(name)
	if len(interfaces) > 0 {
		b.WriteString(" implements ")
		for i, it := range interfaces {
			if i > 0 {
				b.WriteString(" & ")
			}
			b.WriteString(it.Name)
		}
	}
	b.WriteString(" {\n")
	for _, f := range fields {
		renderField(b, f)
	}
	b.WriteString("}\n\n")
}

func renderUnion(b *strings.Builder, s *Schema, t *Union) {
	renderDescription(b, "", t.Description)
	b.WriteString("union ")
	b.WriteString(t.Name)
	b.WriteString(" = ")
	for i, m := range s.PossibleTypes(t) {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(m.Name)
	}
	b.WriteString("\n\n")
}

func renderField(b *strings.Builder, f *Field) {
	renderDescription(b, "  ", f.Description)
	b.WriteString("  ")
	b.WriteString(f.Name)
	renderArguments(b, f.Arguments)
	b.WriteString(": ")
	b.WriteString(typeString(f.Type))
	renderDeprecated(b, f.DeprecationReason)
	b.WriteString("\n")
}

func renderArguments(b *strings.Builder, args []*Argument) {
	if len(args) == 0 {
		return
	}
	b.WriteString("(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		renderArgument(b, a)
	}
	b.WriteString(")")
}

func renderArgument(b *strings.Builder, a *Argument) {
	b.WriteString(a.Name)
	b.WriteString(": ")
	b.WriteString(typeString(a.Type))
	if a.DefaultValue != nil {
		b.WriteString(" = ")
		b.WriteString(FormatValue(a.DefaultValue, a.Type))
	}
	renderDeprecated(b, a.DeprecationReason)
}

func renderDirective(b *strings.Builder, d *Directive) {
	renderDescription(b, "", d.Description)
	b.WriteString("directive @")
	b.WriteString(d.Name)
	renderArguments(b, d.Arguments)
	if d.Repeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on ")
	b.WriteString(strings.Join(d.Locations, " | "))
	b.WriteString("\n\n")
}

// FormatValue renders an internal input value of type t as a GraphQL
// literal, the form used for default values in SDL and introspection.
func FormatValue(v any, t Type) string {
	if v == nil {
		return "null"
	}
	switch tt := Nullable(t).(type) {
	case *List:
		items, ok := v.([]any)
		if !ok {
			return FormatValue(v, tt.OfType)
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = FormatValue(item, tt.OfType)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Enum:
		if name, ok := tt.Serialize(v); ok {
			return name.(string)
		}
	case *Scalar:
		if tt.Serialize != nil {
			if out, ok := tt.Serialize(v); ok {
				v = out
			}
		}
	case *InputObject:
		m, ok := v.(map[string]any)
		if !ok {
			break
		}
		parts := make([]string, 0, len(m))
		for _, f := range tt.Fields {
			if fv, ok := m[f.Name]; ok {
				parts = append(parts, f.Name+": "+FormatValue(fv, f.Type))
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return formatUntyped(v)
}

func formatUntyped(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case json.Number:
		return x.String()
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = formatUntyped(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + formatUntyped(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}
