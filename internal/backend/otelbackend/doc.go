// Package otelbackend exports spans through the OpenTelemetry SDK.
//
// Transactions become server spans, child spans keep their operation in the
// span.op attribute, and captured errors and breadcrumbs are recorded as span
// events on the ambient span of the request. Trace continuation accepts W3C
// traceparent/baggage and Sentry's sentry-trace header.
package otelbackend
