// Package events is a small synchronous observer used to hook into the
// capture lifecycle.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Lifecycle event names.
const (
	ClientAfterSetup    = "Sentry.Client.afterSetup"
	ClientBeforeCapture = "Sentry.Client.beforeCapture"
	ClientAfterCapture  = "Sentry.Client.afterCapture"
)

// Event is passed to every listener of a dispatch.
type Event struct {
	Name    string
	Context context.Context
	// Subject is the value that fired the event.
	Subject any
	Data    map[string]any
}

// Get returns a data value, or nil.
func (e *Event) Get(key string) any {
	return e.Data[key]
}

// Listener handles an event.
type Listener func(*Event)

type listenerEntry struct {
	id       uint64
	listener Listener
}

// Manager dispatches events to listeners in registration order.
type Manager struct {
	logger *zap.Logger
	nextID atomic.Uint64

	mu        sync.RWMutex
	listeners map[string][]listenerEntry
}

// NewManager creates a manager without listeners.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:    logger,
		listeners: make(map[string][]listenerEntry),
	}
}

// On registers l for the named event and returns its id.
func (m *Manager) On(name string, l Listener) uint64 {
	if l == nil {
		return 0
	}

	id := m.nextID.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[name] = append(m.listeners[name], listenerEntry{id: id, listener: l})
	return id
}

// Off removes the listener with the given id.
func (m *Manager) Off(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, entries := range m.listeners {
		for i, e := range entries {
			if e.id == id {
				m.listeners[name] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Listeners returns the number of listeners for the named event.
func (m *Manager) Listeners(name string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners[name])
}

// Dispatch runs every listener of the named event before returning. A
// panicking listener is logged and the remaining listeners still run.
// Dispatch on a nil Manager only builds the event.
func (m *Manager) Dispatch(ctx context.Context, name string, subject any, data map[string]any) *Event {
	event := &Event{Name: name, Context: ctx, Subject: subject, Data: data}
	if event.Data == nil {
		event.Data = make(map[string]any)
	}
	if m == nil {
		return event
	}

	m.mu.RLock()
	entries := make([]listenerEntry, len(m.listeners[name]))
	copy(entries, m.listeners[name])
	m.mu.RUnlock()

	for _, e := range entries {
		m.safeCall(e, event)
	}
	return event
}

func (m *Manager) safeCall(e listenerEntry, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Event listener panicked",
				zap.String("event", event.Name),
				zap.Uint64("listener", e.id),
				zap.Any("panic", r))
		}
	}()
	e.listener(event)
}
