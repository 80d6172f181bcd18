// Package otel turns eventbus events into OpenTelemetry spans: one span
// per HTTP request, one per GraphQL operation, and one per resolved field
// and data loader batch below it.
package otel

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	eventbus "github.com/hanpama/graphexec/internal/eventbus"
	events "github.com/hanpama/graphexec/internal/events"
	reqid "github.com/hanpama/graphexec/internal/reqid"
)

const tracerName = "github.com/hanpama/graphexec"

// Config selects the exporter. Exporter wins over Endpoint; with neither
// set, Setup installs nothing.
type Config struct {
	Endpoint string
	Service  string
	// TraceFields emits a span per resolved field.
	TraceFields bool
	Exporter    sdktrace.SpanExporter
}

// Setup configures OpenTelemetry and attaches eventbus subscribers. The
// returned function flushes spans and detaches the subscribers.
func Setup(cfg Config) (func(context.Context) error, error) {
	exp := cfg.Exporter
	var opts []sdktrace.TracerProviderOption
	switch {
	case exp != nil:
		opts = append(opts, sdktrace.WithSyncer(exp))
	case cfg.Endpoint != "":
		var err error
		exp, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	default:
		return func(context.Context) error { return nil }, nil
	}
	opts = append(opts, sdktrace.WithResource(resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.Service),
	)))
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: tp.Tracer(tracerName), fields: cfg.TraceFields}
	detach := sub.register()

	return func(ctx context.Context) error {
		detach()
		return tp.Shutdown(ctx)
	}, nil
}

type subscriber struct {
	tracer    trace.Tracer
	fields    bool
	httpSpans sync.Map // rid -> trace.Span
	gqlSpans  sync.Map // rid -> trace.Span
}

// parent returns ctx carrying the innermost open span of the request.
func (s *subscriber) parent(ctx context.Context, rid string) context.Context {
	if v, ok := s.gqlSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

// finished records an already completed span of duration d.
func (s *subscriber) finished(ctx context.Context, name string, d time.Duration, err error, attrs ...attribute.KeyValue) {
	end := time.Now()
	_, span := s.tracer.Start(ctx, name, trace.WithTimestamp(end.Add(-d)), trace.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(end))
}

func (s *subscriber) register() (detach func()) {
	var unsubs []func()
	on := func(u func()) { unsubs = append(unsubs, u) }

	on(eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Method),
			attribute.String("http.target", e.Path),
			attribute.String("http.request_id", e.RequestID),
		)
		s.httpSpans.Store(e.RequestID, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		v, ok := s.httpSpans.LoadAndDelete(e.RequestID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.Int("graphql.operations", e.Operations),
		)
		if e.Status >= 500 {
			span.SetStatus(codes.Error, "")
		}
		span.End()
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "graphql.operation")
		span.SetAttributes(attribute.String("graphql.operation.name", e.OperationName))
		s.gqlSpans.Store(rid, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.gqlSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.Int("graphql.error_count", len(e.Errors)),
			attribute.Int64("graphql.resolved_fields", e.ResolvedFields),
		)
		if len(e.Errors) > 0 {
			span.SetStatus(codes.Error, errors.Join(e.Errors...).Error())
		}
		span.End()
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.FieldResolved) {
		if !s.fields {
			return
		}
		rid, _ := reqid.FromContext(ctx)
		s.finished(s.parent(ctx, rid), "graphql.resolve", e.Duration, e.Err,
			attribute.String("graphql.field.parent", e.ParentType),
			attribute.String("graphql.field.name", e.Field),
			attribute.String("graphql.field.path", e.Path),
			attribute.Bool("graphql.field.async", e.Async),
		)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.DataLoaderBatch) {
		rid, _ := reqid.FromContext(ctx)
		s.finished(s.parent(ctx, rid), "dataloader.batch", e.Duration, e.Err,
			attribute.String("dataloader.name", e.Loader),
			attribute.Int("dataloader.keys", e.Keys),
		)
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
