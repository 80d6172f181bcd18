package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Error codes attached to errors produced by the executor.
const (
	CodeUnhandled     = "UNHANDLED_ERROR"
	CodeSyntax        = "SYNTAX_ERROR"
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidValue  = "INVALID_VALUE"
	CodeInvalidOp     = "INVALID_OPERATION"
	CodeTimeout       = "TIMEOUT"
	CodeNonNull       = "NON_NULL_VIOLATION"
	CodeInvalidType   = "INVALID_TYPE"
	CodeSerialization = "SERIALIZATION_ERROR"
)

// Path locates a value in the response: field response keys and list
// indices.
type Path []any

// String renders the path as "hero.friends[0].name".
func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case int:
			b.WriteString("[")
			b.WriteString(strconv.Itoa(v))
			b.WriteString("]")
		default:
			if i > 0 {
				b.WriteString(".")
			}
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

func appendPath(path Path, elem any) Path {
	out := make(Path, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ExecutionError is a located GraphQL error.
type ExecutionError struct {
	Message   string
	Locations []Location
	Path      Path
	Code      string
	// Codes lists Code followed by the codes of wrapped errors.
	Codes []string
	Data  map[string]any

	err error
}

// Coder is implemented by errors that carry an error code. Codes of
// wrapped errors end up in ExecutionError.Codes.
type Coder interface {
	ErrorCode() string
}

// NewExecutionError wraps inner. The message defaults to inner's message.
func NewExecutionError(message string, inner error) *ExecutionError {
	if message == "" && inner != nil {
		message = inner.Error()
	}
	return &ExecutionError{Message: message, err: inner}
}

func newCodedError(code, format string, args ...any) *ExecutionError {
	e := &ExecutionError{Message: fmt.Sprintf(format, args...), Code: code}
	e.Codes = []string{code}
	return e
}

func (e *ExecutionError) Error() string   { return e.Message }
func (e *ExecutionError) Unwrap() error   { return e.err }
func (e *ExecutionError) ErrorCode() string { return e.Code }

// AddLocation appends a source location.
func (e *ExecutionError) AddLocation(line, column int) {
	e.Locations = append(e.Locations, Location{Line: line, Column: column})
}

// collectCodes fills Codes from Code and the wrapped error chain.
func (e *ExecutionError) collectCodes() {
	seen := map[string]bool{}
	var codes []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}
	add(e.Code)
	for err := e.err; err != nil; err = errors.Unwrap(err) {
		if c, ok := err.(Coder); ok {
			add(c.ErrorCode())
		}
	}
	e.Codes = codes
}

func (e *ExecutionError) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"message":`)
	if err := writeJSONValue(&buf, e.Message); err != nil {
		return nil, err
	}
	if len(e.Locations) > 0 {
		buf.WriteString(`,"locations":`)
		if err := writeJSONValue(&buf, e.Locations); err != nil {
			return nil, err
		}
	}
	if len(e.Path) > 0 {
		buf.WriteString(`,"path":`)
		if err := writeJSONValue(&buf, []any(e.Path)); err != nil {
			return nil, err
		}
	}
	if e.Code != "" || len(e.Codes) > 0 || len(e.Data) > 0 {
		ext := OrderedMap{}
		if e.Code != "" {
			ext = append(ext, KeyValue{"code", e.Code})
		}
		if len(e.Codes) > 0 {
			ext = append(ext, KeyValue{"codes", e.Codes})
		}
		if len(e.Data) > 0 {
			ext = append(ext, KeyValue{"data", e.Data})
		}
		buf.WriteString(`,"extensions":`)
		if err := writeJSONValue(&buf, ext); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExecutionErrors is an append-only error list shared by concurrently
// running resolvers.
type ExecutionErrors struct {
	mu   sync.Mutex
	list []*ExecutionError
}

func (l *ExecutionErrors) Add(e *ExecutionError) {
	l.mu.Lock()
	l.list = append(l.list, e)
	l.mu.Unlock()
}

func (l *ExecutionErrors) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

// List returns a copy of the recorded errors.
func (l *ExecutionErrors) List() []*ExecutionError {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.list) == 0 {
		return nil
	}
	return append([]*ExecutionError(nil), l.list...)
}

// ExecutionResult is the outcome of one operation.
type ExecutionResult struct {
	// Data is an OrderedMap, or nil when the root was nulled.
	Data   any
	Errors []*ExecutionError
	// Executed reports whether field execution started. A result with
	// Executed set always carries a data entry on the wire.
	Executed bool
	// Streams holds one event stream per subscription root field, keyed by
	// response key.
	Streams map[string]<-chan *ExecutionResult
}

func (r *ExecutionResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	wrote := false
	if r.Executed || len(r.Errors) == 0 {
		buf.WriteString(`"data":`)
		if err := writeJSONValue(&buf, r.Data); err != nil {
			return nil, err
		}
		wrote = true
	}
	if len(r.Errors) > 0 {
		if wrote {
			buf.WriteByte(',')
		}
		buf.WriteString(`"errors":`)
		if err := writeJSONValue(&buf, r.Errors); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// KeyValue is one entry of an OrderedMap.
type KeyValue struct {
	Key   string
	Value any
}

// OrderedMap is a JSON object that keeps selection order.
type OrderedMap []KeyValue

// Get returns the value stored under key.
func (m OrderedMap) Get(key string) (any, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (m OrderedMap) Keys() []string {
	keys := make([]string, len(m))
	for i, kv := range m {
		keys[i] = kv.Key
	}
	return keys
}

// ToMap converts m, and every nested OrderedMap, into plain maps.
func (m OrderedMap) ToMap() map[string]any {
	out := make(map[string]any, len(m))
	for _, kv := range m {
		out[kv.Key] = Plain(kv.Value)
	}
	return out
}

// Plain converts response values into plain Go maps and slices.
func Plain(v any) any {
	switch x := v.(type) {
	case OrderedMap:
		return x.ToMap()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Plain(item)
		}
		return out
	}
	return v
}

func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONValue(&buf, kv.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONValue(&buf, kv.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONValue(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
