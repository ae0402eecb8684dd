package otelbackend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// Span adapts an OpenTelemetry span to tracing.Span.
type Span struct {
	ctx        context.Context
	span       trace.Span
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// Unwrap returns the underlying OpenTelemetry span.
func (s *Span) Unwrap() trace.Span {
	return s.span
}

// StartChild implements tracing.Span.
func (s *Span) StartChild(opts tracing.SpanOptions) tracing.Span {
	name := opts.Description
	if name == "" {
		name = opts.Op
	}

	startOpts := []trace.SpanStartOption{
		trace.WithAttributes(attribute.String("span.op", opts.Op)),
		trace.WithAttributes(attributes(opts.Data)...),
	}
	if opts.Op == tracing.OpHTTPClient {
		startOpts = append(startOpts, trace.WithSpanKind(trace.SpanKindClient))
	}
	if !opts.Start.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(opts.Start))
	}

	ctx, child := s.tracer.Start(s.ctx, name, startOpts...)
	return &Span{ctx: ctx, span: child, tracer: s.tracer, propagator: s.propagator}
}

// SetStatus implements tracing.Span.
func (s *Span) SetStatus(status tracing.Status) {
	s.span.SetAttributes(attribute.String("span.status", string(status)))
	if status == tracing.StatusOK {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	s.span.SetStatus(codes.Error, string(status))
}

// SetHTTPStatus implements tracing.Span. Only server errors mark the span as
// failed.
func (s *Span) SetHTTPStatus(code int) {
	status := tracing.HTTPStatus(code)
	s.span.SetAttributes(
		attribute.Int("http.response.status_code", code),
		attribute.String("span.status", string(status)),
	)
	switch {
	case code >= http.StatusInternalServerError:
		s.span.SetStatus(codes.Error, string(status))
	case code < http.StatusBadRequest:
		s.span.SetStatus(codes.Ok, "")
	}
}

// SetData implements tracing.Span.
func (s *Span) SetData(key string, value any) {
	s.span.SetAttributes(attribute.KeyValue{Key: attribute.Key(key), Value: value2attr(value)})
}

// SetSampled implements tracing.Span. The sampling decision is made when the
// span starts, so an unsampled transaction is flagged and RetentionProcessor
// drops it with its children.
func (s *Span) SetSampled(sampled bool) {
	s.span.SetAttributes(attribute.Bool(suppressedKey, !sampled))
}

// Finish implements tracing.Span.
func (s *Span) Finish() {
	s.span.End()
}

// FinishAt implements tracing.Span.
func (s *Span) FinishAt(end time.Time) {
	s.span.End(trace.WithTimestamp(end))
}

// TraceHeaders implements tracing.Span.
func (s *Span) TraceHeaders() http.Header {
	h := make(http.Header)
	s.propagator.Inject(s.ctx, propagation.HeaderCarrier(h))

	sc := s.span.SpanContext()
	sampled := "0"
	if sc.IsSampled() {
		sampled = "1"
	}
	h.Set(tracing.SentryTraceHeader, sc.TraceID().String()+"-"+sc.SpanID().String()+"-"+sampled)
	return h
}

func attributes(data map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(data))
	for k, v := range data {
		out = append(out, attribute.KeyValue{Key: attribute.Key(k), Value: value2attr(v)})
	}
	return out
}

func value2attr(v any) attribute.Value {
	switch val := v.(type) {
	case string:
		return attribute.StringValue(val)
	case bool:
		return attribute.BoolValue(val)
	case int:
		return attribute.IntValue(val)
	case int32:
		return attribute.Int64Value(int64(val))
	case int64:
		return attribute.Int64Value(val)
	case uint32:
		return attribute.Int64Value(int64(val))
	case float64:
		return attribute.Float64Value(val)
	case time.Duration:
		return attribute.Int64Value(val.Milliseconds())
	case []string:
		return attribute.StringSliceValue(val)
	case fmt.Stringer:
		return attribute.StringValue(val.String())
	default:
		return attribute.StringValue(fmt.Sprint(val))
	}
}
