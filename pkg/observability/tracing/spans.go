package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nimburion/mountsync/refresher"

// SpanOperation represents a traced operation type.
type SpanOperation string

const (
	// SpanOperationRefreshCycle covers one full refresh cycle.
	SpanOperationRefreshCycle SpanOperation = "refresh.cycle"
	// SpanOperationRefreshNode covers the refresh call against a single router.
	SpanOperationRefreshNode SpanOperation = "refresh.node"
	// SpanOperationDirectoryList covers the node directory lookup.
	SpanOperationDirectoryList SpanOperation = "directory.list"
	// SpanOperationCacheSweep covers one client cache sweep.
	SpanOperationCacheSweep SpanOperation = "cache.sweep"
)

// RefreshSpanOption configures a refresh span.
type RefreshSpanOption func(*refreshSpanOptions)

type refreshSpanOptions struct {
	target     string
	attributes []attribute.KeyValue
}

// WithCycleID tags the span with the refresh cycle id.
func WithCycleID(cycleID string) RefreshSpanOption {
	return func(opts *refreshSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("refresh.cycle_id", cycleID))
	}
}

// WithAdminAddress tags the span with the router admin address and names the span after it.
func WithAdminAddress(address string) RefreshSpanOption {
	return func(opts *refreshSpanOptions) {
		opts.target = address
		opts.attributes = append(opts.attributes, attribute.String("refresh.admin_address", address))
	}
}

// WithLocal marks the refresh as served in-process.
func WithLocal(local bool) RefreshSpanOption {
	return func(opts *refreshSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Bool("refresh.local", local))
	}
}

// StartRefreshSpan creates a span for a refresh operation.
func StartRefreshSpan(ctx context.Context, operation SpanOperation, opts ...RefreshSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)

	spanOpts := &refreshSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("refresh.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := string(operation)
	if spanOpts.target != "" {
		spanName = fmt.Sprintf("%s %s", operation, spanOpts.target)
	}

	kind := trace.SpanKindInternal
	if operation == SpanOperationRefreshNode || operation == SpanOperationDirectoryList {
		kind = trace.SpanKindClient
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(kind))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// SetCycleTally records the outcome counters of a finished cycle on span.
func SetCycleTally(span trace.Span, success, failure int, timedOut bool) {
	span.SetAttributes(
		attribute.Int("refresh.success_count", success),
		attribute.Int("refresh.failure_count", failure),
		attribute.Bool("refresh.timed_out", timedOut),
	)
}

// RecordError records an error in span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
