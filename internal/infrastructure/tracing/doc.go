/*
Package tracing connects the request lifecycle to an error-tracking backend.

# Overview

A Backend (Sentry, OpenTelemetry or the in-memory recorder) owns span handles.
This package owns the bookkeeping around them: which span is currently ambient
for a request, how nested spans are pushed and popped, and when the per-request
transaction is opened and closed.

# Hub and span stack

Every traced request carries a Hub in its context. The Hub is the ambient span
register: newly created child spans are parented on Hub.Span(). A SpanStack
pairs "span that was ambient before" with "span that is ambient now" so that
nested work (database transactions, outgoing HTTP calls) can be unwound in LIFO
order:

	stack := tracing.NewSpanStack(hub)
	stack.Push(hub.Span().StartChild(tracing.SpanOptions{Op: tracing.OpDBTransaction}))
	// ...
	if span := stack.Pop(); span != nil {
		span.SetStatus(tracing.StatusOK)
		span.Finish()
	}

Neither Hub nor SpanStack is meant to be shared between concurrent requests.

# Middleware

	router.Use(tracing.HTTPMiddleware(backend, tracing.WithStartHook(hook)))

	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(backend)),
	)

HTTPMiddleware skips OPTIONS and HEAD, continues traces from the sentry-trace,
baggage and traceparent headers, and marks 404 transactions as not sampled.
Spans are finished on every exit path, including panics.

# Outgoing requests

	client := &http.Client{Transport: tracing.NewTransport(nil)}
	tracing.InstrumentResty(restyClient)
*/
package tracing
