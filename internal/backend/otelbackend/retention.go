package otelbackend

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// suppressedKey marks a transaction that must not be exported.
const suppressedKey = "sampling.suppressed"

// RetentionProcessor holds the spans of each local trace until its root ends,
// then forwards them all to next, or drops them all when the root was marked
// unsampled with SetSampled(false).
type RetentionProcessor struct {
	next sdktrace.SpanProcessor

	mu      sync.Mutex
	rootOf  map[trace.SpanID]trace.SpanID
	pending map[trace.SpanID][]sdktrace.ReadOnlySpan
}

// NewRetentionProcessor wraps next.
func NewRetentionProcessor(next sdktrace.SpanProcessor) *RetentionProcessor {
	return &RetentionProcessor{
		next:    next,
		rootOf:  make(map[trace.SpanID]trace.SpanID),
		pending: make(map[trace.SpanID][]sdktrace.ReadOnlySpan),
	}
}

// OnStart implements sdktrace.SpanProcessor.
func (p *RetentionProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	id := s.SpanContext().SpanID()
	ps := s.Parent()

	p.mu.Lock()
	if !ps.IsValid() || ps.IsRemote() {
		p.rootOf[id] = id
	} else if root, ok := p.rootOf[ps.SpanID()]; ok {
		p.rootOf[id] = root
	}
	p.mu.Unlock()

	p.next.OnStart(parent, s)
}

// OnEnd implements sdktrace.SpanProcessor.
func (p *RetentionProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	id := s.SpanContext().SpanID()

	p.mu.Lock()
	root, tracked := p.rootOf[id]
	delete(p.rootOf, id)
	if !tracked {
		p.mu.Unlock()
		p.next.OnEnd(s)
		return
	}
	if root != id {
		p.pending[root] = append(p.pending[root], s)
		p.mu.Unlock()
		return
	}
	held := p.pending[root]
	delete(p.pending, root)
	p.mu.Unlock()

	if suppressed(s) {
		return
	}
	for _, span := range held {
		p.next.OnEnd(span)
	}
	p.next.OnEnd(s)
}

// Shutdown forwards spans of roots that never ended, then shuts next down.
func (p *RetentionProcessor) Shutdown(ctx context.Context) error {
	p.release()
	return p.next.Shutdown(ctx)
}

// ForceFlush implements sdktrace.SpanProcessor. Spans of open roots stay held.
func (p *RetentionProcessor) ForceFlush(ctx context.Context) error {
	return p.next.ForceFlush(ctx)
}

func (p *RetentionProcessor) release() {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[trace.SpanID][]sdktrace.ReadOnlySpan)
	p.rootOf = make(map[trace.SpanID]trace.SpanID)
	p.mu.Unlock()

	for _, spans := range pending {
		for _, span := range spans {
			p.next.OnEnd(span)
		}
	}
}

func suppressed(s sdktrace.ReadOnlySpan) bool {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == suppressedKey {
			return kv.Value.AsBool()
		}
	}
	return false
}
