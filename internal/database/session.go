package database

import (
	"context"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// Session holds the query logs of one request, one per connection.
type Session struct {
	logs   []*QueryLog
	byName map[string]*QueryLog
}

// NewSession creates a session over logs.
func NewSession(logs ...*QueryLog) *Session {
	s := &Session{byName: make(map[string]*QueryLog, len(logs))}
	for _, l := range logs {
		s.Add(l)
	}
	return s
}

// Add registers l, replacing any log with the same connection name.
func (s *Session) Add(l *QueryLog) {
	if _, ok := s.byName[l.Name()]; !ok {
		s.logs = append(s.logs, l)
	} else {
		for i, existing := range s.logs {
			if existing.Name() == l.Name() {
				s.logs[i] = l
			}
		}
	}
	s.byName[l.Name()] = l
}

// Logs returns the query logs in connection order.
func (s *Session) Logs() []*QueryLog {
	return s.logs
}

// Log returns the query log of the named connection, or nil.
func (s *Session) Log(name string) *QueryLog {
	return s.byName[name]
}

// StartMonitoring turns on span mapping for every log and binds them to hub.
func (s *Session) StartMonitoring(hub *tracing.Hub) {
	for _, l := range s.logs {
		l.Bind(hub)
		l.SetPerformanceMonitoring(true)
	}
}

type sessionKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored in ctx, or nil.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// MonitoringHook returns a tracing start hook that starts monitoring the
// session found in the request context.
func MonitoringHook() tracing.StartHook {
	return func(ctx context.Context, hub *tracing.Hub) {
		if s := SessionFromContext(ctx); s != nil {
			s.StartMonitoring(hub)
		}
	}
}
