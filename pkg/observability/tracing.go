package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOption configures a span
type SpanOption func(trace.Span)

// WithAttributes adds attributes to a span
func WithAttributes(attrs ...attribute.KeyValue) SpanOption {
	return func(span trace.Span) {
		span.SetAttributes(attrs...)
	}
}

// WithError marks a span as errored
func WithError(err error) SpanOption {
	return func(span trace.Span) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// StartSpan starts a new span with the given name and options
// Returns the span and a context containing the span
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...SpanOption) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)

	for _, opt := range opts {
		opt(span)
	}

	return ctx, span
}

// EndSpan ends a span, optionally recording an error
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID extracts the trace ID from context as a string
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// SpanID extracts the span ID from context as a string
func SpanID(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if spanCtx.IsValid() {
		return spanCtx.SpanID().String()
	}
	return ""
}

// SetSpanAttributes adds attributes to the current span in the context
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// SetSpanError records an error on the current span in the context
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddSpanEvent adds an event to the current span in the context
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// Common attribute keys for the projection engine's spans.
var (
	// Projection attributes
	AttrProjectionName = attribute.Key("projection.name")
	AttrProjectionKind = attribute.Key("projection.kind")

	// Lock attributes
	AttrLockHeld = attribute.Key("lock.held")

	// Event attributes
	AttrEventName  = attribute.Key("event.name")
	AttrEventCount = attribute.Key("event.count")
	AttrStreamName = attribute.Key("stream.name")

	// Error attributes
	AttrErrorType = attribute.Key("error.type")
)

// ProjectionAttrs returns the attributes every projector span carries: which
// projection and whether it's plain (C7) or backed by a read model (C8).
func ProjectionAttrs(name, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProjectionName.String(name),
		AttrProjectionKind.String(kind),
	}
}

// EventAttrs returns attributes describing one dispatched event.
func EventAttrs(streamName, eventName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStreamName.String(streamName),
		AttrEventName.String(eventName),
	}
}

// ErrorAttrs returns a span attribute naming the Go type of err, useful for
// grouping errors in a trace backend without relying on message text.
func ErrorAttrs(err error) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrErrorType.String(fmt.Sprintf("%T", err)),
	}
}
