package tracing

import (
	"context"
	"sync"
)

// Hub is the request-scoped ambient span register.
type Hub struct {
	backend Backend

	mu     sync.Mutex
	span   Span
	timers *Timers
}

// NewHub creates a hub with no ambient span.
func NewHub(backend Backend) *Hub {
	return &Hub{backend: backend}
}

// Backend returns the backend spans on this hub belong to.
func (h *Hub) Backend() Backend {
	return h.backend
}

// Span returns the ambient span, or nil.
func (h *Hub) Span() Span {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.span
}

// SetSpan replaces the ambient span. nil clears it.
func (h *Hub) SetSpan(span Span) {
	h.mu.Lock()
	h.span = span
	h.mu.Unlock()
}

// Timers returns the event timers of this request, if any were attached.
func (h *Hub) Timers() *Timers {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timers
}

// SetTimers attaches event timers to the hub.
func (h *Hub) SetTimers(timers *Timers) {
	h.mu.Lock()
	h.timers = timers
	h.mu.Unlock()
}

type hubKey struct{}

// WithHub stores the hub in ctx.
func WithHub(ctx context.Context, hub *Hub) context.Context {
	return context.WithValue(ctx, hubKey{}, hub)
}

// HubFromContext returns the hub stored in ctx, or nil.
func HubFromContext(ctx context.Context) *Hub {
	if ctx == nil {
		return nil
	}
	hub, _ := ctx.Value(hubKey{}).(*Hub)
	return hub
}

// SpanFromContext returns the ambient span of the hub in ctx, or nil.
func SpanFromContext(ctx context.Context) Span {
	if hub := HubFromContext(ctx); hub != nil {
		return hub.Span()
	}
	return nil
}
