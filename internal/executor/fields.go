package executor

import (
	language "github.com/hanpama/graphexec/internal/language"
	schema "github.com/hanpama/graphexec/internal/schema"
)

// FieldMap keeps collected fields in selection order.
type FieldMap struct {
	fields []*CollectedField
	index  map[string]int
}

// CollectedField groups the AST fields sharing one response key.
type CollectedField struct {
	ResponseKey string
	Fields      []*language.Field
}

func newFieldMap() *FieldMap {
	return &FieldMap{index: make(map[string]int)}
}

func (m *FieldMap) add(key string, field *language.Field) {
	if idx, ok := m.index[key]; ok {
		m.fields[idx].Fields = append(m.fields[idx].Fields, field)
		return
	}
	m.index[key] = len(m.fields)
	m.fields = append(m.fields, &CollectedField{ResponseKey: key, Fields: []*language.Field{field}})
}

func (m *FieldMap) Fields() []*CollectedField { return m.fields }

func (m *FieldMap) Len() int { return len(m.fields) }

// Get returns the group for key, or nil.
func (m *FieldMap) Get(key string) *CollectedField {
	if idx, ok := m.index[key]; ok {
		return m.fields[idx]
	}
	return nil
}

// Keys returns the response keys in order.
func (m *FieldMap) Keys() []string {
	keys := make([]string, len(m.fields))
	for i, f := range m.fields {
		keys[i] = f.ResponseKey
	}
	return keys
}

func responseKey(f *language.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// CollectFields groups the selections of selectionSet that apply to
// objectType by response key. Fragments are entered at most once each.
func (ec *ExecutionContext) CollectFields(objectType *schema.Object, selectionSet language.SelectionSet) *FieldMap {
	fields := newFieldMap()
	ec.collectFields(objectType, selectionSet, fields, make(map[string]bool))
	return fields
}

func (ec *ExecutionContext) collectFields(objectType *schema.Object, selectionSet language.SelectionSet, fields *FieldMap, visited map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !ec.ShouldIncludeNode(sel.Directives) {
				continue
			}
			fields.add(responseKey(sel), sel)

		case *language.InlineFragment:
			if !ec.ShouldIncludeNode(sel.Directives) {
				continue
			}
			if !ec.DoesFragmentConditionMatch(sel.TypeCondition, objectType) {
				continue
			}
			ec.collectFields(objectType, sel.SelectionSet, fields, visited)

		case *language.FragmentSpread:
			if !ec.ShouldIncludeNode(sel.Directives) {
				continue
			}
			if visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true

			fragment := ec.Document.Fragments.ForName(sel.Name)
			if fragment == nil {
				continue
			}
			if !ec.DoesFragmentConditionMatch(fragment.TypeCondition, objectType) {
				continue
			}
			ec.collectFields(objectType, fragment.SelectionSet, fields, visited)
		}
	}
}

// DoesFragmentConditionMatch reports whether a fragment with the given type
// condition applies to objectType. An empty condition always applies.
func (ec *ExecutionContext) DoesFragmentConditionMatch(typeCondition string, objectType *schema.Object) bool {
	if typeCondition == "" || typeCondition == objectType.Name {
		return true
	}
	conditional := ec.Schema.Type(typeCondition)
	if conditional == nil || !schema.IsAbstract(conditional) {
		return false
	}
	return ec.Schema.IsPossibleType(conditional, objectType)
}

// ShouldIncludeNode evaluates @skip and @include. Skip wins when both are
// present. A missing or unusable condition counts as false, so it keeps a
// field under @skip and drops it under @include.
func (ec *ExecutionContext) ShouldIncludeNode(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, _ := ec.directiveArgument(skip, "if").(bool); v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := ec.directiveArgument(include, "if").(bool); !ok || !v {
			return false
		}
	}
	return true
}

func (ec *ExecutionContext) directiveArgument(d *language.Directive, name string) any {
	arg := d.Arguments.ForName(name)
	if arg == nil {
		return nil
	}
	v, err := CoerceValue(schema.NonNullOf(schema.Boolean), arg.Value, ec.Variables)
	if err != nil {
		return nil
	}
	return v
}

// fieldDefinition finds name on parent, including the meta fields. It
// returns nil for unknown fields, which are then left out of the response.
func (ec *ExecutionContext) fieldDefinition(parent *schema.Object, name string) *schema.Field {
	switch name {
	case "__typename":
		return ec.Schema.TypeNameMetaField()
	case "__schema":
		if parent == ec.Schema.Query {
			return ec.Schema.SchemaMetaField()
		}
	case "__type":
		if parent == ec.Schema.Query {
			return ec.Schema.TypeMetaField()
		}
	}
	return parent.FieldByName(name)
}

// mergeSelectionSets concatenates the sub-selections of a field group.
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var out language.SelectionSet
	for _, f := range fields {
		out = append(out, f.SelectionSet...)
	}
	return out
}
