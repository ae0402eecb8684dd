package database

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/zoobzio/clockz"
	"google.golang.org/grpc"
)

// DefaultAuxiliaryConnections are never observed.
var DefaultAuxiliaryConnections = []string{"debug_kit"}

// SessionConfig controls the query logs created for each request.
type SessionConfig struct {
	IncludeSchemaReflection bool
	// Auxiliary lists connections that are skipped. nil means
	// DefaultAuxiliaryConnections.
	Auxiliary []string
	Observer  Observer
	Clock     clockz.Clock
}

// NewSession creates one query log per configured non-auxiliary connection.
// A connection's existing logger is kept behind the query log when its
// driver config asks for it or query logging was already enabled.
func (r *Registry) NewSession(cfg SessionConfig) *Session {
	auxiliary := cfg.Auxiliary
	if auxiliary == nil {
		auxiliary = DefaultAuxiliaryConnections
	}

	session := NewSession()
	for _, name := range r.Configured() {
		if slices.Contains(auxiliary, name) {
			continue
		}
		conn, err := r.Get(name)
		if err != nil {
			continue
		}

		inner := conn.Logger()
		if !conn.cfg.SentryLog && !conn.QueryLoggingEnabled() {
			inner = nil
		}

		opts := []LogOption{
			WithIncludeSchema(cfg.IncludeSchemaReflection),
			WithRole(conn.cfg.Role),
			WithSystem(conn.cfg.System),
			WithObserver(cfg.Observer),
		}
		if cfg.Clock != nil {
			opts = append(opts, WithClock(cfg.Clock))
		}
		session.Add(NewQueryLog(inner, name, opts...))
	}
	return session
}

// QueryMiddleware attaches a fresh Session to every request.
func QueryMiddleware(registry *Registry, cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := registry.NewSession(cfg)
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), session))
		c.Next()
	}
}

// UnaryQueryInterceptor attaches a fresh Session to every unary gRPC call.
func UnaryQueryInterceptor(registry *Registry, cfg SessionConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(WithSession(ctx, registry.NewSession(cfg)), req)
	}
}
