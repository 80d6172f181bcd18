// Package metrics exports Prometheus series for HTTP requests, GraphQL
// operations, resolved fields and data loader batches. Values are fed
// from the eventbus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/graphexec/internal/eventbus"
	events "github.com/hanpama/graphexec/internal/events"
)

const namespace = "graphexec"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      prometheus.Histogram
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	resolvedFields    prometheus.Histogram
	fieldErrors       *prometheus.CounterVec
	fieldDuration     *prometheus.HistogramVec
	loaderBatches     *prometheus.CounterVec
	loaderKeys        *prometheus.HistogramVec

	detach []func()
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by status code",
		}, []string{"code"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operations_total",
			Help:      "GraphQL operations by type and outcome",
		}, []string{"type", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operation_duration_seconds",
			Help:      "GraphQL operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		resolvedFields: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "resolved_fields",
			Help:      "Resolver calls per operation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		fieldErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "field_errors_total",
			Help:      "Resolver errors by parent type and field",
		}, []string{"parent_type", "field"}),
		fieldDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "async_field_duration_seconds",
			Help:      "Duration of async resolvers",
			Buckets:   prometheus.DefBuckets,
		}, []string{"parent_type", "field"}),
		loaderBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataloader",
			Name:      "batches_total",
			Help:      "Data loader batch calls by loader and outcome",
		}, []string{"loader", "status"}),
		loaderKeys: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dataloader",
			Name:      "batch_keys",
			Help:      "Keys per data loader batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"loader"}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.operations, m.operationDuration, m.resolvedFields,
		m.fieldErrors, m.fieldDuration,
		m.loaderBatches, m.loaderKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Attach subscribes the collectors to b. Close detaches them.
func (m *Metrics) Attach(b *eventbus.Bus) {
	m.detach = append(m.detach,
		eventbus.SubscribeTo(b, func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
			m.httpDuration.Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.GraphQLFinish) {
			opType := e.OperationType
			if opType == "" {
				opType = "unknown"
			}
			status := "ok"
			if len(e.Errors) > 0 {
				status = "error"
			}
			m.operations.WithLabelValues(opType, status).Inc()
			m.operationDuration.WithLabelValues(opType).Observe(e.Duration.Seconds())
			m.resolvedFields.Observe(float64(e.ResolvedFields))
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.FieldResolved) {
			if e.Err != nil {
				m.fieldErrors.WithLabelValues(e.ParentType, e.Field).Inc()
			}
			if e.Async {
				m.fieldDuration.WithLabelValues(e.ParentType, e.Field).Observe(e.Duration.Seconds())
			}
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.DataLoaderBatch) {
			status := "ok"
			if e.Err != nil {
				status = "error"
			}
			m.loaderBatches.WithLabelValues(e.Loader, status).Inc()
			m.loaderKeys.WithLabelValues(e.Loader).Observe(float64(e.Keys))
		}),
	)
}

func (m *Metrics) Close() {
	for _, d := range m.detach {
		d()
	}
	m.detach = nil
}
