package sentrybackend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

var ErrMissingDSN = errors.New("sentry: dsn is required")

// Options configures the Sentry client.
type Options struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	TracesSampleRate float64
	// Prefixes mark frames whose module or path starts with one of them as
	// in-app.
	Prefixes []string
	// InAppExclude lists path fragments that are never in-app.
	InAppExclude []string

	BeforeSend            func(*sentry.Event, *sentry.EventHint) *sentry.Event
	BeforeSendTransaction func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// Backend implements tracing.Backend on top of sentry-go.
type Backend struct {
	hub    *sentry.Hub
	opts   Options
	logger *zap.Logger
}

// New creates a backend with its own client and hub.
func New(opts Options, logger *zap.Logger) (*Backend, error) {
	if opts.DSN == "" {
		return nil, ErrMissingDSN
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Backend{opts: opts, logger: logger}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:                   opts.DSN,
		Environment:           opts.Environment,
		Release:               opts.Release,
		Debug:                 opts.Debug,
		EnableTracing:         true,
		TracesSampleRate:      opts.TracesSampleRate,
		BeforeSend:            b.beforeSend,
		BeforeSendTransaction: opts.BeforeSendTransaction,
	})
	if err != nil {
		return nil, fmt.Errorf("create sentry client: %w", err)
	}
	b.hub = sentry.NewHub(client, sentry.NewScope())

	logger.Info("Sentry backend initialized",
		zap.String("environment", opts.Environment),
		zap.String("release", opts.Release),
		zap.Float64("traces_sample_rate", opts.TracesSampleRate))
	return b, nil
}

// Hub returns the backend's root hub.
func (b *Backend) Hub() *sentry.Hub {
	return b.hub
}

// NewScope implements tracing.Backend.
func (b *Backend) NewScope(ctx context.Context) context.Context {
	return sentry.SetHubOnContext(ctx, b.hubFor(ctx).Clone())
}

// StartTransaction implements tracing.Backend.
func (b *Backend) StartTransaction(ctx context.Context, opts tracing.TransactionOptions) tracing.Span {
	if !sentry.HasHubOnContext(ctx) {
		ctx = sentry.SetHubOnContext(ctx, b.hub)
	}

	tx := sentry.StartTransaction(ctx, opts.Name,
		sentry.ContinueFromHeaders(opts.Headers.Get(tracing.SentryTraceHeader), opts.Headers.Get(tracing.BaggageHeader)),
		sentry.WithOpName(opts.Op),
		sentry.WithTransactionSource(transactionSource(opts.Source)),
	)
	if !opts.Start.IsZero() {
		tx.StartTime = opts.Start
	}
	return &Span{span: tx}
}

// CaptureException implements tracing.Backend.
func (b *Backend) CaptureException(ctx context.Context, err error) tracing.EventID {
	if err == nil {
		return ""
	}
	return eventID(b.hubFor(ctx).CaptureException(err))
}

// CaptureMessage implements tracing.Backend. A hint stacktrace is attached
// as the current thread.
func (b *Backend) CaptureMessage(ctx context.Context, message string, level tracing.Level, hint *tracing.Hint) tracing.EventID {
	event := sentry.NewEvent()
	event.Level = sentry.Level(level)
	event.Message = message
	if hint != nil && len(hint.Stacktrace) > 0 {
		event.Threads = []sentry.Thread{{
			Stacktrace: stacktrace(hint.Stacktrace),
			Current:    true,
		}}
	}
	return eventID(b.hubFor(ctx).CaptureEvent(event))
}

// AddBreadcrumb implements tracing.Backend.
func (b *Backend) AddBreadcrumb(ctx context.Context, breadcrumb tracing.Breadcrumb) {
	b.hubFor(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      breadcrumb.Type,
		Category:  breadcrumb.Category,
		Message:   breadcrumb.Message,
		Data:      breadcrumb.Data,
		Level:     sentry.Level(breadcrumb.Level),
		Timestamp: breadcrumb.Timestamp,
	}, nil)
}

// SetExtras implements tracing.Backend.
func (b *Backend) SetExtras(ctx context.Context, extras map[string]any) {
	if len(extras) == 0 {
		return
	}
	b.hubFor(ctx).ConfigureScope(func(scope *sentry.Scope) {
		scope.SetContext("extra", sentry.Context(extras))
	})
}

// Flush implements tracing.Backend.
func (b *Backend) Flush(timeout time.Duration) bool {
	ok := b.hub.Flush(timeout)
	if !ok {
		b.logger.Warn("Sentry flush timed out", zap.Duration("timeout", timeout))
	}
	return ok
}

func (b *Backend) hubFor(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	return b.hub
}

func (b *Backend) beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		if st := event.Exception[i].Stacktrace; st != nil {
			b.markInApp(st.Frames)
		}
	}
	for i := range event.Threads {
		if st := event.Threads[i].Stacktrace; st != nil {
			b.markInApp(st.Frames)
		}
	}
	if b.opts.BeforeSend != nil {
		return b.opts.BeforeSend(event, hint)
	}
	return event
}

func (b *Backend) markInApp(frames []sentry.Frame) {
	for i := range frames {
		frames[i].InApp = b.inApp(frames[i])
	}
}

func (b *Backend) inApp(frame sentry.Frame) bool {
	path := frame.AbsPath
	if path == "" {
		path = frame.Filename
	}
	for _, exclude := range b.opts.InAppExclude {
		if exclude != "" && strings.Contains(path, exclude) {
			return false
		}
	}
	for _, prefix := range b.opts.Prefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(frame.Module, prefix) || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// stacktrace converts innermost-first frames into a sentry stacktrace, which
// lists the outermost frame first.
func stacktrace(frames []tracing.Frame) *sentry.Stacktrace {
	out := make([]sentry.Frame, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		out = append(out, sentry.Frame{
			Function: f.Function,
			Module:   f.Module,
			Filename: f.File,
			AbsPath:  f.File,
			Lineno:   f.Line,
			InApp:    f.InApp,
		})
	}
	return &sentry.Stacktrace{Frames: out}
}

func eventID(id *sentry.EventID) tracing.EventID {
	if id == nil {
		return ""
	}
	return tracing.EventID(*id)
}
