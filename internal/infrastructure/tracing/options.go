package tracing

import (
	"context"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// StartHook runs once the transaction of a request is open and ambient.
type StartHook func(ctx context.Context, hub *Hub)

// Option configures the middleware and interceptors.
type Option func(*options)

type options struct {
	clock        clockz.Clock
	hooks        []StartHook
	logger       *zap.Logger
	trustedStart bool
}

func newOptions(opts []Option) *options {
	o := &options{
		clock:  clockz.RealClock,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithClock sets the clock used for request start times and timers.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithStartHook registers a hook run at the start of every traced request.
func WithStartHook(hook StartHook) Option {
	return func(o *options) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// WithLogger sets the logger for tracing diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTrustedRequestStart makes the middleware take the transaction start from
// the X-Request-Start header. Clients can set that header freely, so enable it
// only behind a proxy that overwrites it.
func WithTrustedRequestStart() Option {
	return func(o *options) {
		o.trustedStart = true
	}
}

func (o *options) runHooks(ctx context.Context, hub *Hub) {
	for _, hook := range o.hooks {
		hook(ctx, hub)
	}
}
