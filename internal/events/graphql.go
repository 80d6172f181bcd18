package events

import "time"

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
}

// GraphQLFinish is emitted after executing a GraphQL operation.
// OperationType stays empty when the request failed before an operation
// was selected.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	// ResolvedFields counts the resolver calls of the operation.
	ResolvedFields int64
	Duration       time.Duration
}

// FieldResolved is emitted after a resolver returned and its value was
// completed. Path is rendered as "hero.friends[0].name".
type FieldResolved struct {
	ParentType string
	Field      string
	Path       string
	Async      bool
	Err        error
	Duration   time.Duration
}
