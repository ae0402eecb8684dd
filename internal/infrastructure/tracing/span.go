package tracing

import (
	"context"
	"net/http"
	"time"
)

// Span operations.
const (
	OpHTTPServer       = "http.server"
	OpMiddlewareHandle = "middleware.handle"
	OpDBTransaction    = "db.transaction"
	OpDBQuery          = "db.sql.query"
	OpHTTPClient       = "http.client"
	OpGRPCServer       = "grpc.server"
	OpViewRender       = "view.render"
	OpDefault          = "default"
)

// Transaction sources.
const (
	SourceRoute  = "route"
	SourceCustom = "custom"
)

// Status is the terminal status of a span.
type Status string

const (
	StatusOK               Status = "ok"
	StatusAborted          Status = "aborted"
	StatusCancelled        Status = "cancelled"
	StatusNotFound         Status = "not_found"
	StatusInvalidArgument  Status = "invalid_argument"
	StatusPermissionDenied Status = "permission_denied"
	StatusUnauthenticated  Status = "unauthenticated"
	StatusInternalError    Status = "internal_error"
	StatusUnavailable      Status = "unavailable"
	StatusUnknown          Status = "unknown"
)

// HTTPStatus maps an HTTP status code to a span status.
func HTTPStatus(code int) Status {
	switch {
	case code < 400:
		return StatusOK
	case code == http.StatusUnauthorized:
		return StatusUnauthenticated
	case code == http.StatusForbidden:
		return StatusPermissionDenied
	case code == http.StatusNotFound:
		return StatusNotFound
	case code == 499:
		return StatusCancelled
	case code < 500:
		return StatusInvalidArgument
	case code == http.StatusServiceUnavailable:
		return StatusUnavailable
	case code < 600:
		return StatusInternalError
	default:
		return StatusUnknown
	}
}

// Level is the severity of a captured message or breadcrumb.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// EventID identifies a captured event. Empty when nothing was sent.
type EventID string

// SpanOptions describes a child span.
type SpanOptions struct {
	Op          string
	Description string
	// Start defaults to now when zero.
	Start time.Time
	Data  map[string]any
}

// TransactionOptions describes the root span of a request.
type TransactionOptions struct {
	Name   string
	Op     string
	Source string
	Start  time.Time
	// Headers holds inbound continuation headers (sentry-trace, baggage, traceparent).
	Headers http.Header
}

// Span is a handle owned by a Backend.
type Span interface {
	StartChild(opts SpanOptions) Span
	SetStatus(status Status)
	SetHTTPStatus(code int)
	SetData(key string, value any)
	SetSampled(sampled bool)
	// Finish ends the span now. Finishing a span twice is a caller error.
	Finish()
	FinishAt(end time.Time)
	// TraceHeaders returns the headers an outgoing request needs to continue this trace.
	TraceHeaders() http.Header
}

// Breadcrumb is a lightweight event attached to the next captured event.
type Breadcrumb struct {
	Level     Level
	Type      string
	Category  string
	Message   string
	Data      map[string]any
	Timestamp time.Time
}

// Frame is one sanitized stack frame.
type Frame struct {
	Function string
	Module   string
	File     string
	Line     int
	InApp    bool
}

// Hint carries optional data for CaptureMessage.
type Hint struct {
	Stacktrace []Frame
}

// Backend is the error-tracking client.
type Backend interface {
	// NewScope returns a context whose breadcrumbs and extras are isolated
	// from other requests.
	NewScope(ctx context.Context) context.Context
	StartTransaction(ctx context.Context, opts TransactionOptions) Span
	CaptureException(ctx context.Context, err error) EventID
	CaptureMessage(ctx context.Context, message string, level Level, hint *Hint) EventID
	AddBreadcrumb(ctx context.Context, breadcrumb Breadcrumb)
	SetExtras(ctx context.Context, extras map[string]any)
	Flush(timeout time.Duration) bool
}
