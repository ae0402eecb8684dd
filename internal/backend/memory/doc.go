// Package memory is an in-process tracing backend.
//
// It keeps every finished span and captured event in memory, and hands
// finished spans to a buffered collector that logs them with zap. It backs the
// "log" backend of the demo server and the tests of the other packages.
package memory
