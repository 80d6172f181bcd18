package events

import "time"

// HTTPStart is emitted when the GraphQL handler receives a request.
type HTTPStart struct {
	RequestID string
	Method    string
	Path      string
}

// HTTPFinish is emitted after the response was written. Operations is the
// number of GraphQL operations the request carried, above one for batches
// and zero when the request was rejected before execution.
type HTTPFinish struct {
	RequestID  string
	Method     string
	Path       string
	Status     int
	Operations int
	Duration   time.Duration
}
