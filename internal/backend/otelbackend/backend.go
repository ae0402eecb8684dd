package otelbackend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

const instrumentationName = "github.com/LordSimal/gin-sentry"

// Options configures the tracer provider built by New.
type Options struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP/gRPC collector address. Empty disables export.
	Endpoint   string
	Insecure   bool
	SampleRate float64
}

// Backend implements tracing.Backend on an OpenTelemetry tracer provider.
type Backend struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	logger     *zap.Logger
}

// New builds a tracer provider with an optional OTLP/gRPC exporter.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Backend, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "gin-sentry"
	}
	if opts.ServiceVersion == "" {
		opts.ServiceVersion = "1.0.0"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
			semconv.DeploymentEnvironmentName(opts.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenTelemetry resource: %w", err)
	}

	tpOptions := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRate))),
	}
	if opts.Endpoint != "" {
		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		batcher := sdktrace.NewBatchSpanProcessor(exporter)
		tpOptions = append(tpOptions, sdktrace.WithSpanProcessor(NewRetentionProcessor(batcher)))
	}

	if logger != nil {
		logger.Info("OpenTelemetry backend initialized",
			zap.String("service", opts.ServiceName),
			zap.String("endpoint", opts.Endpoint),
			zap.Float64("sample_rate", opts.SampleRate))
	}
	return NewWithProvider(sdktrace.NewTracerProvider(tpOptions...), logger), nil
}

// NewWithProvider wraps an existing tracer provider.
func NewWithProvider(provider *sdktrace.TracerProvider, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		logger: logger,
	}
}

// NewScope implements tracing.Backend. Scope data lives on the request's
// spans, so the context is returned unchanged.
func (b *Backend) NewScope(ctx context.Context) context.Context {
	return ctx
}

// StartTransaction implements tracing.Backend.
func (b *Backend) StartTransaction(ctx context.Context, opts tracing.TransactionOptions) tracing.Span {
	ctx = b.continueFrom(ctx, opts)

	startOpts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("span.op", opts.Op),
			attribute.String("transaction.source", opts.Source),
		),
	}
	if !opts.Start.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(opts.Start))
	}

	ctx, span := b.tracer.Start(ctx, opts.Name, startOpts...)
	return &Span{ctx: ctx, span: span, tracer: b.tracer, propagator: b.propagator}
}

// CaptureException implements tracing.Backend.
func (b *Backend) CaptureException(ctx context.Context, err error) tracing.EventID {
	if err == nil {
		return ""
	}
	id := newEventID()
	b.onSpan(ctx, "exception", func(span trace.Span) {
		span.RecordError(err,
			trace.WithStackTrace(true),
			trace.WithAttributes(attribute.String("event.id", string(id))))
		span.SetStatus(codes.Error, err.Error())
	})
	return id
}

// CaptureMessage implements tracing.Backend.
func (b *Backend) CaptureMessage(ctx context.Context, message string, level tracing.Level, hint *tracing.Hint) tracing.EventID {
	id := newEventID()
	attrs := []attribute.KeyValue{
		attribute.String("event.id", string(id)),
		attribute.String("message", message),
		attribute.String("level", string(level)),
	}
	if hint != nil && len(hint.Stacktrace) > 0 {
		attrs = append(attrs, attribute.String("exception.stacktrace", formatFrames(hint.Stacktrace)))
	}
	b.onSpan(ctx, "message", func(span trace.Span) {
		span.AddEvent("message", trace.WithAttributes(attrs...))
	})
	return id
}

// AddBreadcrumb implements tracing.Backend.
func (b *Backend) AddBreadcrumb(ctx context.Context, breadcrumb tracing.Breadcrumb) {
	attrs := []attribute.KeyValue{
		attribute.String("breadcrumb.category", breadcrumb.Category),
		attribute.String("breadcrumb.level", string(breadcrumb.Level)),
		attribute.String("breadcrumb.message", breadcrumb.Message),
	}
	for k, v := range breadcrumb.Data {
		attrs = append(attrs, attribute.KeyValue{Key: attribute.Key("breadcrumb.data." + k), Value: value2attr(v)})
	}
	opts := []trace.EventOption{trace.WithAttributes(attrs...)}
	if !breadcrumb.Timestamp.IsZero() {
		opts = append(opts, trace.WithTimestamp(breadcrumb.Timestamp))
	}
	b.onSpan(ctx, "breadcrumb", func(span trace.Span) {
		span.AddEvent("breadcrumb", opts...)
	})
}

// SetExtras implements tracing.Backend.
func (b *Backend) SetExtras(ctx context.Context, extras map[string]any) {
	if len(extras) == 0 {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(extras))
	for k, v := range extras {
		attrs = append(attrs, attribute.KeyValue{Key: attribute.Key("extra." + k), Value: value2attr(v)})
	}
	b.onSpan(ctx, "extras", func(span trace.Span) {
		span.SetAttributes(attrs...)
	})
}

// Flush implements tracing.Backend.
func (b *Backend) Flush(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.provider.ForceFlush(ctx); err != nil {
		b.logger.Warn("OpenTelemetry flush failed", zap.Error(err))
		return false
	}
	return true
}

// Shutdown flushes and stops the tracer provider.
func (b *Backend) Shutdown(ctx context.Context) error {
	return b.provider.Shutdown(ctx)
}

// onSpan runs fn on the ambient span of the request in ctx, or on a
// standalone span named name when the call happens outside a request.
func (b *Backend) onSpan(ctx context.Context, name string, fn func(trace.Span)) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s, ok := tracing.SpanFromContext(ctx).(*Span); ok && s != nil {
		fn(s.span)
		return
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		fn(span)
		return
	}

	_, span := b.tracer.Start(ctx, name)
	fn(span)
	span.End()
}

// continueFrom extracts W3C headers, falling back to sentry-trace.
func (b *Backend) continueFrom(ctx context.Context, opts tracing.TransactionOptions) context.Context {
	if opts.Headers == nil {
		return ctx
	}
	ctx = b.propagator.Extract(ctx, propagation.HeaderCarrier(opts.Headers))
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}

	parts := strings.Split(opts.Headers.Get(tracing.SentryTraceHeader), "-")
	if len(parts) < 2 {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(parts[0])
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(parts[1])
	if err != nil {
		return ctx
	}
	var flags trace.TraceFlags
	if len(parts) > 2 && parts[2] == "1" {
		flags = trace.FlagsSampled
	}
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}))
}

func formatFrames(frames []tracing.Frame) string {
	var sb strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	return sb.String()
}

func newEventID() tracing.EventID {
	return tracing.EventID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
