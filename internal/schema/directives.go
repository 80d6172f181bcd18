package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"
)

type Directive struct {
	Name        string
	Description string
	Locations   []string
	Arguments   []*Argument
	Repeatable  bool

	builtin bool
}

// Argument returns the argument definition called name.
func (d *Directive) Argument(name string) *Argument {
	for _, a := range d.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func (d *Directive) IsBuiltin() bool { return d.builtin }

// IncludeDirective returns a fresh @include definition.
func IncludeDirective() *Directive {
	return &Directive{
		Name:        "include",
		Description: "Directs the executor to include this field or fragment only when the `if` argument is true.",
		Arguments: []*Argument{{
			Name:        "if",
			Description: "Included when true.",
			Type:        NonNullOf(Boolean),
		}},
		Locations: []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
		builtin:   true,
	}
}

func SkipDirective() *Directive {
	return &Directive{
		Name:        "skip",
		Description: "Directs the executor to skip this field or fragment when the `if` argument is true.",
		Arguments: []*Argument{{
			Name:        "if",
			Description: "Skipped when true.",
			Type:        NonNullOf(Boolean),
		}},
		Locations: []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
		builtin:   true,
	}
}

func DeprecatedDirective() *Directive {
	return &Directive{
		Name:        "deprecated",
		Description: "Marks an element of a GraphQL schema as no longer supported.",
		Arguments: []*Argument{{
			Name:         "reason",
			Description:  "Explains why this element was deprecated.",
			Type:         String,
			DefaultValue: "No longer supported",
		}},
		Locations: []string{"FIELD_DEFINITION", "ARGUMENT_DEFINITION", "INPUT_FIELD_DEFINITION", "ENUM_VALUE"},
		builtin:   true,
	}
}

func SpecifiedByDirective() *Directive {
	return &Directive{
		Name:        "specifiedBy",
		Description: "Exposes a URL that specifies the behavior of this scalar.",
		Arguments: []*Argument{{
			Name:        "url",
			Description: "The URL that specifies the behavior of this scalar.",
			Type:        NonNullOf(String),
		}},
		Locations: []string{"SCALAR"},
		builtin:   true,
	}
}

var nameRE = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// ValidateName checks the GraphQL name grammar.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("name %q is not a valid GraphQL name: it must match /[_A-Za-z][_0-9A-Za-z]*/", name)
	}
	return nil
}

// NameConverter rewrites field and argument names while the registry
// processes the schema. Introspection types are never converted.
type NameConverter interface {
	NameForField(name string, parent NamedType) string
	NameForArgument(name string, parent NamedType, field *Field) string
}

// CamelCaseConverter produces lowerCamelCase: "Name" becomes "name" and
// "first_name" becomes "firstName".
type CamelCaseConverter struct{}

func (CamelCaseConverter) NameForField(name string, _ NamedType) string { return convertCase(name, false) }
func (CamelCaseConverter) NameForArgument(name string, _ NamedType, _ *Field) string {
	return convertCase(name, false)
}

// PascalCaseConverter produces PascalCase field names and lowerCamelCase
// argument names.
type PascalCaseConverter struct{}

func (PascalCaseConverter) NameForField(name string, _ NamedType) string { return convertCase(name, true) }
func (PascalCaseConverter) NameForArgument(name string, _ NamedType, _ *Field) string {
	return convertCase(name, false)
}

// DefaultNameConverter keeps names unchanged.
type DefaultNameConverter struct{}

func (DefaultNameConverter) NameForField(name string, _ NamedType) string { return name }
func (DefaultNameConverter) NameForArgument(name string, _ NamedType, _ *Field) string {
	return name
}

// convertCase applies strcase to name, keeping leading underscores.
func convertCase(name string, upper bool) string {
	rest := strings.TrimLeft(name, "_")
	if rest == "" {
		return name
	}
	prefix := name[:len(name)-len(rest)]
	if upper {
		return prefix + strcase.ToCamel(rest)
	}
	return prefix + strcase.ToLowerCamel(rest)
}
