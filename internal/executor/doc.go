// Package executor runs GraphQL operations against an initialized
// schema.Schema by building an execution node tree and walking it with a
// pluggable strategy.
//
// # Overview
//
// Execute prepares a request and hands the root node to the strategy
// registered for the operation type:
//
//  1. Parse the query (unless a parsed document is supplied) and pick the
//     operation by name, or the only operation when no name is given.
//  2. Validate the document with gqlparser's validator. Rule violations
//     stop the request before any resolver runs.
//  3. Coerce variables against the operation's variable definitions. A
//     missing or invalid variable stops the request with an INVALID_VALUE
//     error naming the variable.
//  4. Build the root node for the operation's root type and collect its
//     fields.
//  5. Run the strategy. Queries and subscriptions default to the parallel
//     strategy; mutations default to the serial strategy.
//  6. Assemble the response from the node tree. Null propagation happens
//     here, while converting nodes to values.
//
// # Node tree
//
// Every selected field becomes a node typed after the field's declared
// type: ObjectNode for objects, interfaces and unions, ArrayNode for lists
// and ValueNode for scalars and enums. Executing a node calls its resolver
// with the parent's result as source, then completes the value:
//
//   - A null value on a Non-Null type records a "Cannot return null" error
//     at the node's path.
//   - Abstract types resolve their concrete object through ResolveType, or
//     by probing IsTypeOf of each possible type in registration order.
//   - Leaves are serialized through the scalar or enum.
//   - Lists create one child node per item and complete them right away.
//   - Objects collect their sub-selection against the concrete type and
//     create one child node per response key.
//
// Errors never escape a node. A failed node records a located error, its
// result becomes null and its subtree is not executed. When the tree is
// converted to a value, a null child on a Non-Null type turns its parent
// into null, repeating up to the nearest nullable ancestor or the root.
//
// # Strategies
//
// The serial strategy walks the tree depth first with a stack, so every
// root field finishes with its whole subtree before the next one starts.
//
// The parallel strategy walks the tree level by level with a queue. Fields
// not marked Async run inline. Async fields of a level run as separate
// goroutines, bounded by MaxParallelExecutionCount, and the strategy waits
// for all of them before starting the next level.
//
// Resolvers may return a schema.Deferred. Both strategies park such nodes
// and drain them once the current level (or stack) is exhausted, which is
// what lets data loaders collect the keys of a whole level into one batch.
//
// The subscription strategy calls the Subscriber of each root field and
// returns one result stream per field. Every event runs the field's
// selection as a separate small execution.
//
// # Cancellation
//
// Strategies check the context between nodes. A canceled context makes
// Execute return ErrCanceled. A deadline, from Options.Timeout or the
// caller's context, produces a TIMEOUT error in the result, or ErrTimeout
// when the timeout action says so.
package executor
