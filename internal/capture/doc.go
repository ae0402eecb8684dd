/*
Package capture reports errors and recovered panics to the tracing backend.

A Client wraps a tracing.Backend. Before each capture it fires
events.ClientBeforeCapture, applies extras to the request scope and adds one
breadcrumb per query logged during the request, then fires
events.ClientAfterCapture with the resulting event id. A Client without a
backend does nothing.

ErrorLogger pairs the Client with zap, and Recovery turns panics and gin
errors into captures:

	errorLogger := capture.NewErrorLogger(logger, client)
	router.Use(capture.Recovery(errorLogger))
*/
package capture
