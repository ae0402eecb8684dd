package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

const defaultBufferSize = 1000

// Event is a captured exception or message.
type Event struct {
	ID          tracing.EventID
	Kind        string
	Err         error
	Message     string
	Level       tracing.Level
	Stacktrace  []tracing.Frame
	Breadcrumbs []tracing.Breadcrumb
	Extras      map[string]any
	Timestamp   time.Time
}

// Backend records spans and events in memory.
type Backend struct {
	logger *zap.Logger
	clock  clockz.Clock
	spans  chan *Span
	done   chan struct{}
	root   *scope

	mu       sync.Mutex
	all      []*Span
	finished []*Span
	events   []*Event
	closed   bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the clock used for span timestamps.
func WithClock(clock clockz.Clock) Option {
	return func(b *Backend) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithBufferSize sets the collector buffer size.
func WithBufferSize(size int) Option {
	return func(b *Backend) {
		if size > 0 {
			b.spans = make(chan *Span, size)
		}
	}
}

// New creates a backend and starts its collector.
func New(logger *zap.Logger, opts ...Option) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{
		logger: logger,
		clock:  clockz.RealClock,
		spans:  make(chan *Span, defaultBufferSize),
		done:   make(chan struct{}),
		root:   newScope(),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.collectSpans()
	return b
}

// Close stops the collector. Spans finished afterwards are still recorded.
func (b *Backend) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.spans)
	b.mu.Unlock()
	<-b.done
}

// NewScope implements tracing.Backend.
func (b *Backend) NewScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, newScope())
}

// StartTransaction implements tracing.Backend.
func (b *Backend) StartTransaction(ctx context.Context, opts tracing.TransactionOptions) tracing.Span {
	start := opts.Start
	if start.IsZero() {
		start = b.clock.Now()
	}

	tx := &Span{
		backend:     b,
		TraceID:     newTraceID(),
		SpanID:      newSpanID(),
		Name:        opts.Name,
		Op:          opts.Op,
		Description: opts.Name,
		Source:      opts.Source,
		Sampled:     true,
		StartTime:   start,
		Transaction: true,
	}
	if traceID, parentID, sampled, ok := continueFrom(opts); ok {
		tx.TraceID = traceID
		tx.ParentID = parentID
		tx.Sampled = sampled
		tx.Continued = true
	}

	b.started(tx)
	return tx
}

// CaptureException implements tracing.Backend.
func (b *Backend) CaptureException(ctx context.Context, err error) tracing.EventID {
	if err == nil {
		return ""
	}
	return b.capture(ctx, &Event{
		Kind:    "exception",
		Err:     err,
		Message: err.Error(),
		Level:   tracing.LevelError,
	})
}

// CaptureMessage implements tracing.Backend.
func (b *Backend) CaptureMessage(ctx context.Context, message string, level tracing.Level, hint *tracing.Hint) tracing.EventID {
	event := &Event{
		Kind:    "message",
		Message: message,
		Level:   level,
	}
	if hint != nil {
		event.Stacktrace = append([]tracing.Frame(nil), hint.Stacktrace...)
	}
	return b.capture(ctx, event)
}

// AddBreadcrumb implements tracing.Backend.
func (b *Backend) AddBreadcrumb(ctx context.Context, breadcrumb tracing.Breadcrumb) {
	if breadcrumb.Timestamp.IsZero() {
		breadcrumb.Timestamp = b.clock.Now()
	}
	b.scopeFor(ctx).addBreadcrumb(breadcrumb)
}

// SetExtras implements tracing.Backend.
func (b *Backend) SetExtras(ctx context.Context, extras map[string]any) {
	b.scopeFor(ctx).setExtras(extras)
}

// Flush waits until the collector has drained or the timeout passes.
func (b *Backend) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for len(b.spans) > 0 {
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Spans returns every finished span in finishing order.
func (b *Backend) Spans() []*Span {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Span(nil), b.finished...)
}

// Started returns every span ever started, finished or not.
func (b *Backend) Started() []*Span {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Span(nil), b.all...)
}

// SpansByOp returns the finished spans with the given operation.
func (b *Backend) SpansByOp(op string) []*Span {
	var out []*Span
	for _, s := range b.Spans() {
		if s.Op == op {
			out = append(out, s)
		}
	}
	return out
}

// Transactions returns the finished transactions.
func (b *Backend) Transactions() []*Span {
	var out []*Span
	for _, s := range b.Spans() {
		if s.Transaction {
			out = append(out, s)
		}
	}
	return out
}

// Events returns every captured event.
func (b *Backend) Events() []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Event(nil), b.events...)
}

// Reset forgets recorded spans and events.
func (b *Backend) Reset() {
	b.mu.Lock()
	b.all = nil
	b.finished = nil
	b.events = nil
	b.mu.Unlock()
	b.root.reset()
}

func (b *Backend) capture(ctx context.Context, event *Event) tracing.EventID {
	sc := b.scopeFor(ctx)
	event.ID = tracing.EventID(strings.ReplaceAll(uuid.NewString(), "-", ""))
	event.Timestamp = b.clock.Now()
	event.Breadcrumbs, event.Extras = sc.snapshot()

	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()

	b.logger.Info("event captured",
		zap.String("event_id", string(event.ID)),
		zap.String("kind", event.Kind),
		zap.String("level", string(event.Level)),
		zap.String("message", event.Message),
		zap.Int("breadcrumbs", len(event.Breadcrumbs)),
	)
	return event.ID
}

func (b *Backend) scopeFor(ctx context.Context) *scope {
	if ctx != nil {
		if sc, ok := ctx.Value(scopeKey{}).(*scope); ok {
			return sc
		}
	}
	return b.root
}

func (b *Backend) started(span *Span) {
	b.mu.Lock()
	b.all = append(b.all, span)
	b.mu.Unlock()
}

func (b *Backend) recordFinished(span *Span) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.finished = append(b.finished, span)
	if b.closed {
		return
	}
	select {
	case b.spans <- span:
	default:
		b.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID),
		)
	}
}

// collectSpans logs finished spans.
func (b *Backend) collectSpans() {
	defer close(b.done)
	for span := range b.spans {
		b.processSpan(span)
	}
}

func (b *Backend) processSpan(span *Span) {
	span.mu.Lock()
	fields := []zap.Field{
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
		zap.String("op", span.Op),
		zap.String("description", span.Description),
		zap.Duration("duration", span.EndTime.Sub(span.StartTime)),
		zap.String("status", string(span.Status)),
		zap.Bool("sampled", span.Sampled),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID))
	}
	transaction := span.Transaction
	span.mu.Unlock()

	if transaction {
		b.logger.Info("transaction finished", fields...)
	} else {
		b.logger.Debug("span finished", fields...)
	}
}

// continueFrom reads sentry-trace first, then traceparent.
func continueFrom(opts tracing.TransactionOptions) (traceID, parentID string, sampled, ok bool) {
	if opts.Headers == nil {
		return "", "", false, false
	}

	if v := opts.Headers.Get(tracing.SentryTraceHeader); v != "" {
		parts := strings.Split(strings.TrimSpace(v), "-")
		if len(parts) >= 2 && len(parts[0]) == 32 && len(parts[1]) == 16 {
			sampled = len(parts) < 3 || parts[2] != "0"
			return parts[0], parts[1], sampled, true
		}
	}

	if v := opts.Headers.Get(tracing.TraceparentHeader); v != "" {
		parts := strings.Split(strings.TrimSpace(v), "-")
		if len(parts) == 4 && len(parts[1]) == 32 && len(parts[2]) == 16 {
			return parts[1], parts[2], strings.HasSuffix(parts[3], "1"), true
		}
	}
	return "", "", false, false
}

func newTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newSpanID() string {
	return newTraceID()[:16]
}
