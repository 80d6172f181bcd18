package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/metadata"

	eventbus "github.com/hanpama/graphexec/internal/eventbus"
	events "github.com/hanpama/graphexec/internal/events"
	executor "github.com/hanpama/graphexec/internal/executor"
	language "github.com/hanpama/graphexec/internal/language"
	reqid "github.com/hanpama/graphexec/internal/reqid"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It decodes requests, runs the executor and writes JSON responses.
type Handler struct {
	exec    *executor.Executor
	opt     Options
	docs    *lru.Cache
	limiter *rate.Limiter
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into outgoing gRPC
	// metadata for resolvers that call gRPC backends. Header names are
	// case-insensitive. Default is none.
	MetadataHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// DocumentCacheSize bounds the cache of parsed documents. Only
	// documents that pass validation are cached when the executor
	// validates. 0 disables the cache.
	DocumentCacheSize int

	// RateLimit and RateBurst configure a token bucket shared by all
	// clients. A zero RateLimit disables limiting.
	RateLimit rate.Limit
	RateBurst int

	// UserContext builds the per-request value handed to resolvers.
	UserContext func(*http.Request) any

	// RootValue is the source of root fields.
	RootValue any

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}
func WithDocumentCache(size int) Option { return func(o *Options) { o.DocumentCacheSize = size } }
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Options) {
		o.RateLimit = rate.Limit(perSecond)
		o.RateBurst = burst
	}
}
func WithUserContext(fn func(*http.Request) any) Option {
	return func(o *Options) { o.UserContext = fn }
}
func WithRootValue(v any) Option { return func(o *Options) { o.RootValue = v } }

func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option { return func(o *Options) { o.GraphiQL = enable } }

// New creates a GraphQL HTTP handler around exec.
func New(exec *executor.Executor, opts ...Option) (*Handler, error) {
	if exec == nil {
		return nil, errors.New("server: executor is nil")
	}
	op := Options{Timeout: 10 * time.Second, GraphiQL: true, DocumentCacheSize: 256}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	h := &Handler{exec: exec, opt: op}
	if op.DocumentCacheSize > 0 {
		cache, err := lru.New(op.DocumentCacheSize)
		if err != nil {
			return nil, err
		}
		h.docs = cache
	}
	if op.RateLimit > 0 {
		burst := op.RateBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(op.RateLimit, burst)
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	var rid string
	if given := r.Header.Get(reqid.Header); given != "" {
		ctx, rid = reqid.WithID(ctx, given)
	} else {
		ctx, rid = reqid.NewContext(ctx)
	}
	w.Header().Set(reqid.Header, rid)

	status, operations := http.StatusOK, 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{RequestID: rid, Method: r.Method, Path: r.URL.Path})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			RequestID:  rid,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     status,
			Operations: operations,
			Duration:   time.Since(start),
		})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		h.writeJSON(w, status, errorResponse("method not allowed"))
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", "1")
		h.writeJSON(w, status, errorResponse("rate limit exceeded"))
		return
	}

	ctx = h.forwardHeaders(ctx, r, rid)

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Error() == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		h.writeJSON(w, status, errorResponse(berr.Error()))
		return
	}

	var userCtx any
	if h.opt.UserContext != nil {
		userCtx = h.opt.UserContext(r)
	}

	if batch != nil {
		operations = len(batch)
		out := make([]*executor.ExecutionResult, len(batch))
		for i := range batch {
			res, err := h.executeOne(ctx, batch[i], r.Method, userCtx)
			if err != nil {
				status = h.failureStatus(err)
				h.writeJSON(w, status, errorResponse(err.Error()))
				return
			}
			out[i] = res
		}
		h.writeJSON(w, status, out)
		return
	}

	operations = 1
	res, err := h.executeOne(ctx, req, r.Method, userCtx)
	if err != nil {
		status = h.failureStatus(err)
		h.writeJSON(w, status, errorResponse(err.Error()))
		return
	}
	h.writeJSON(w, status, res)
}

// forwardHeaders copies the configured headers and the request id into
// outgoing gRPC metadata.
func (h *Handler) forwardHeaders(ctx context.Context, r *http.Request, rid string) context.Context {
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md["graphql-request-id"] = []string{rid}
	return metadata.NewOutgoingContext(ctx, md)
}

func (h *Handler) failureStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.opt.Logger.Warn("request timed out", zap.Error(err))
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		h.opt.Logger.Debug("request canceled", zap.Error(err))
		return http.StatusServiceUnavailable
	}
	h.opt.Logger.Error("request failed", zap.Error(err))
	return http.StatusInternalServerError
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest, method string, userCtx any) (*executor.ExecutionResult, error) {
	execReq := executor.Request{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
		RootValue:     h.opt.RootValue,
		UserContext:   userCtx,
	}
	if doc, validated := h.document(req.Query); doc != nil {
		execReq.Document = doc
		execReq.Validated = validated
		if op := language.OperationByName(doc, req.OperationName); op != nil {
			switch {
			case op.Operation == language.Subscription:
				return errorResponse("Subscriptions are not supported over HTTP."), nil
			case op.Operation == language.Mutation && method == http.MethodGet:
				return errorResponse("Mutations are not allowed over GET."), nil
			}
		}
	}
	return h.exec.Execute(ctx, execReq)
}

// document returns the parsed document for query and whether it passed
// validation. Without a validator the document is only parsed. Documents
// that fail are left to the executor, which reports their errors.
func (h *Handler) document(query string) (*language.QueryDocument, bool) {
	key := xxhash.Sum64String(query)
	if h.docs != nil {
		if v, ok := h.docs.Get(key); ok {
			entry := v.(cachedDocument)
			if entry.query == query {
				return entry.doc, entry.validated
			}
		}
	}
	var (
		doc       *language.QueryDocument
		validated bool
	)
	if v := h.exec.Validator(); v != nil {
		parsed, errs := v.ParseAndValidate(query)
		if len(errs) > 0 {
			return nil, false
		}
		doc, validated = parsed, true
	} else {
		parsed, err := language.ParseQuery(query)
		if err != nil {
			return nil, false
		}
		doc = parsed
	}
	if h.docs != nil {
		h.docs.Add(key, cachedDocument{query: query, doc: doc, validated: validated})
	}
	return doc, validated
}

type cachedDocument struct {
	query     string
	doc       *language.QueryDocument
	validated bool
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type requestError string

func (e requestError) Error() string { return string(e) }

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, requestError("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, requestError("invalid 'variables' JSON")
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, requestError("unsupported Content-Type")
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, requestError("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, requestError(errBodyTooLargeMessage)
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, requestError("invalid JSON")
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, requestError("empty batch")
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, requestError("invalid JSON")
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, requestError("missing 'query'")
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

func errorResponse(message string) *executor.ExecutionResult {
	return &executor.ExecutionResult{Errors: []*executor.ExecutionError{{Message: message}}}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if h.opt.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		h.opt.Logger.Warn("write response", zap.Error(err))
	}
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	wildcard := false
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		if o == "*" || o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func acceptsHTML(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
