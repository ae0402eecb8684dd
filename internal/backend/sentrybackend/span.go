package sentrybackend

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// Span adapts a *sentry.Span to tracing.Span.
type Span struct {
	span *sentry.Span
}

// Unwrap returns the underlying sentry span.
func (s *Span) Unwrap() *sentry.Span {
	return s.span
}

// StartChild implements tracing.Span.
func (s *Span) StartChild(opts tracing.SpanOptions) tracing.Span {
	child := s.span.StartChild(opts.Op, sentry.WithDescription(opts.Description))
	if !opts.Start.IsZero() {
		child.StartTime = opts.Start
	}
	for k, v := range opts.Data {
		child.SetData(k, v)
	}
	return &Span{span: child}
}

// SetStatus implements tracing.Span.
func (s *Span) SetStatus(status tracing.Status) {
	s.span.Status = spanStatus(status)
}

// SetHTTPStatus implements tracing.Span.
func (s *Span) SetHTTPStatus(code int) {
	s.span.Status = sentry.HTTPtoSpanStatus(code)
	s.span.SetData("http.response.status_code", code)
}

// SetData implements tracing.Span.
func (s *Span) SetData(key string, value any) {
	s.span.SetData(key, value)
}

// SetSampled implements tracing.Span.
func (s *Span) SetSampled(sampled bool) {
	if sampled {
		s.span.Sampled = sentry.SampledTrue
		return
	}
	s.span.Sampled = sentry.SampledFalse
}

// Finish implements tracing.Span.
func (s *Span) Finish() {
	s.span.Finish()
}

// FinishAt implements tracing.Span. sentry-go keeps a preset end time.
func (s *Span) FinishAt(end time.Time) {
	s.span.EndTime = end
	s.span.Finish()
}

// TraceHeaders implements tracing.Span.
func (s *Span) TraceHeaders() http.Header {
	h := make(http.Header)
	h.Set(tracing.SentryTraceHeader, s.span.ToSentryTrace())
	if baggage := s.span.ToBaggage(); baggage != "" {
		h.Set(tracing.BaggageHeader, baggage)
	}
	return h
}

func spanStatus(status tracing.Status) sentry.SpanStatus {
	switch status {
	case tracing.StatusOK:
		return sentry.SpanStatusOK
	case tracing.StatusAborted:
		return sentry.SpanStatusAborted
	case tracing.StatusCancelled:
		return sentry.SpanStatusCanceled
	case tracing.StatusNotFound:
		return sentry.SpanStatusNotFound
	case tracing.StatusInvalidArgument:
		return sentry.SpanStatusInvalidArgument
	case tracing.StatusPermissionDenied:
		return sentry.SpanStatusPermissionDenied
	case tracing.StatusUnauthenticated:
		return sentry.SpanStatusUnauthenticated
	case tracing.StatusInternalError:
		return sentry.SpanStatusInternalError
	case tracing.StatusUnavailable:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusUnknown
	}
}

func transactionSource(source string) sentry.TransactionSource {
	switch source {
	case tracing.SourceRoute:
		return sentry.SourceRoute
	default:
		return sentry.SourceCustom
	}
}
