// Package validation checks executable documents against a schema using
// gqlparser's validator. The schema is rendered to SDL once and loaded into
// gqlparser's own schema model.
package validation

import (
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
)

// Validator holds the gqlparser view of one initialized schema.
type Validator struct {
	schema *ast.Schema
}

// New loads s into gqlparser. s must be initialized.
func New(s *schema.Schema) (*Validator, error) {
	if !s.Initialized() {
		return nil, fmt.Errorf("validation: schema is not initialized")
	}
	loaded, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: schema.Render(s)})
	if err != nil {
		return nil, fmt.Errorf("validation: load schema: %w", err)
	}
	return &Validator{schema: loaded}, nil
}

// Validate returns the rule violations of doc. An empty list means the
// document may be executed.
func (v *Validator) Validate(doc *language.QueryDocument) []*language.Error {
	return validator.Validate(v.schema, doc)
}

// ParseAndValidate parses query and validates it in one step, the way the
// HTTP layer needs it.
func (v *Validator) ParseAndValidate(query string) (*language.QueryDocument, []*language.Error) {
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, toList(err)
	}
	if errs := v.Validate(doc); len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

func toList(err error) gqlerror.List {
	switch e := err.(type) {
	case *gqlerror.Error:
		return gqlerror.List{e}
	case gqlerror.List:
		return e
	}
	return gqlerror.List{{Message: err.Error()}}
}
