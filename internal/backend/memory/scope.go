package memory

import (
	"sync"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

const maxBreadcrumbs = 100

type scopeKey struct{}

type scope struct {
	mu          sync.Mutex
	breadcrumbs []tracing.Breadcrumb
	extras      map[string]any
}

func newScope() *scope {
	return &scope{extras: make(map[string]any)}
}

func (s *scope) addBreadcrumb(b tracing.Breadcrumb) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breadcrumbs = append(s.breadcrumbs, b)
	if len(s.breadcrumbs) > maxBreadcrumbs {
		s.breadcrumbs = s.breadcrumbs[len(s.breadcrumbs)-maxBreadcrumbs:]
	}
}

func (s *scope) setExtras(extras map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range extras {
		s.extras[k] = v
	}
}

func (s *scope) snapshot() ([]tracing.Breadcrumb, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	crumbs := append([]tracing.Breadcrumb(nil), s.breadcrumbs...)
	extras := make(map[string]any, len(s.extras))
	for k, v := range s.extras {
		extras[k] = v
	}
	return crumbs, extras
}

func (s *scope) reset() {
	s.mu.Lock()
	s.breadcrumbs = nil
	s.extras = make(map[string]any)
	s.mu.Unlock()
}
