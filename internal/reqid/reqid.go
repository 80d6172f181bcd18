// Package reqid carries a per-request identifier through contexts.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

// Header is the HTTP header used to accept and echo request ids.
const Header = "X-Request-Id"

// NewContext stores a fresh random id in a copy of parent and returns both.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(parent, key{}, id), id
}

// WithID stores id in a copy of parent. An id that is not a valid UUID is
// replaced by a fresh one.
func WithID(parent context.Context, id string) (context.Context, string) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return NewContext(parent)
	}
	id = parsed.String()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request id from ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
