package capture

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/LordSimal/gin-sentry/internal/database"
	"github.com/LordSimal/gin-sentry/internal/events"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// Capture kinds reported to the Observer.
const (
	KindException = "exception"
	KindError     = "error"
)

// Observer is notified of every capture sent.
type Observer interface {
	Captured(kind string)
}

// Client sends captures to a tracing backend.
type Client struct {
	backend       tracing.Backend
	events        *events.Manager
	includeSchema bool
	observer      Observer
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEvents dispatches lifecycle events on m.
func WithEvents(m *events.Manager) Option {
	return func(c *Client) { c.events = m }
}

// WithIncludeSchemaReflection keeps schema reflection queries in breadcrumbs.
func WithIncludeSchemaReflection(include bool) Option {
	return func(c *Client) { c.includeSchema = include }
}

// WithObserver reports captures to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client. backend may be nil.
func NewClient(backend tracing.Backend, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.events == nil {
		c.events = events.NewManager(c.logger)
	}
	return c
}

// Enabled reports whether the client has a backend.
func (c *Client) Enabled() bool {
	return c != nil && c.backend != nil
}

// Backend returns the backend, or nil.
func (c *Client) Backend() tracing.Backend {
	return c.backend
}

// Events returns the lifecycle event manager.
func (c *Client) Events() *events.Manager {
	return c.events
}

// CaptureException reports err.
func (c *Client) CaptureException(ctx context.Context, err error, req *http.Request, extras map[string]any) tracing.EventID {
	if !c.Enabled() || err == nil {
		return ""
	}

	c.events.Dispatch(ctx, events.ClientBeforeCapture, c, map[string]any{
		"exception": err,
		"request":   req,
	})
	c.prepareScope(ctx, extras)

	id := c.backend.CaptureException(ctx, err)
	c.captured(KindException, id)

	c.events.Dispatch(ctx, events.ClientAfterCapture, c, map[string]any{
		"exception":   err,
		"request":     req,
		"lastEventId": id,
	})
	return id
}

// CaptureError reports a runtime error as a message carrying its stack.
func (c *Client) CaptureError(ctx context.Context, rerr *RuntimeError, req *http.Request, extras map[string]any) tracing.EventID {
	if !c.Enabled() || rerr == nil {
		return ""
	}

	c.events.Dispatch(ctx, events.ClientBeforeCapture, c, map[string]any{
		"error":   rerr,
		"request": req,
	})
	c.prepareScope(ctx, extras)

	var hint *tracing.Hint
	if len(rerr.Trace) > 0 {
		hint = &tracing.Hint{Stacktrace: CleanTrace(rerr.Trace)}
	}
	id := c.backend.CaptureMessage(ctx, rerr.Message, rerr.Level, hint)
	c.captured(KindError, id)

	c.events.Dispatch(ctx, events.ClientAfterCapture, c, map[string]any{
		"error":       rerr,
		"request":     req,
		"lastEventId": id,
	})
	return id
}

func (c *Client) prepareScope(ctx context.Context, extras map[string]any) {
	if len(extras) > 0 {
		c.backend.SetExtras(ctx, extras)
	}
	c.addQueryBreadcrumbs(ctx)
}

// addQueryBreadcrumbs adds one breadcrumb per query logged during the
// request in ctx.
func (c *Client) addQueryBreadcrumbs(ctx context.Context) {
	session := database.SessionFromContext(ctx)
	if session == nil {
		return
	}

	for _, log := range session.Logs() {
		log.SetIncludeSchema(c.includeSchema)
		for _, q := range log.Queries() {
			c.backend.AddBreadcrumb(ctx, tracing.Breadcrumb{
				Level:    tracing.LevelInfo,
				Type:     "default",
				Category: "sql.query",
				Message:  q.String(),
				Data: map[string]any{
					"connectionName":  log.Name(),
					"executionTimeMs": q.ElapsedMs(),
					"rows":            q.Rows,
				},
			})
		}
	}
}

func (c *Client) captured(kind string, id tracing.EventID) {
	if c.observer != nil {
		c.observer.Captured(kind)
	}
	c.logger.Debug("Capture sent", zap.String("kind", kind), zap.String("event_id", string(id)))
}
