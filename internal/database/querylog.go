package database

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/zoobzio/clockz"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// Observer receives query log activity. The monitoring package implements it
// with prometheus counters.
type Observer interface {
	QueryLogged(connection string, role Role, took time.Duration)
	SchemaQuerySkipped(connection string)
	SpanMapped(connection, op string)
}

// QueryLog decorates an optional logger and keeps the queries of one
// connection for the duration of a request.
type QueryLog struct {
	logger   tracelog.Logger
	name     string
	system   string
	clock    clockz.Clock
	observer Observer
	mapper   *SpanMapper

	mu            sync.Mutex
	queries       []LoggedQuery
	totalTime     time.Duration
	totalRows     int64
	role          Role
	includeSchema bool
	performance   bool
}

// LogOption configures a QueryLog.
type LogOption func(*QueryLog)

// WithIncludeSchema keeps schema reflection queries.
func WithIncludeSchema(include bool) LogOption {
	return func(l *QueryLog) { l.includeSchema = include }
}

// WithRole sets the role reported for queries that carry none.
func WithRole(role Role) LogOption {
	return func(l *QueryLog) {
		if role != "" {
			l.role = role
		}
	}
}

// WithSystem sets the db.system reported on spans.
func WithSystem(system string) LogOption {
	return func(l *QueryLog) { l.system = system }
}

// WithClock sets the clock used to back-date query spans.
func WithClock(clock clockz.Clock) LogOption {
	return func(l *QueryLog) { l.clock = clock }
}

// WithObserver reports activity to o.
func WithObserver(o Observer) LogOption {
	return func(l *QueryLog) { l.observer = o }
}

// NewQueryLog creates a query log for the named connection. logger may be
// nil.
func NewQueryLog(logger tracelog.Logger, name string, opts ...LogOption) *QueryLog {
	l := &QueryLog{
		logger: logger,
		name:   name,
		system: "postgresql",
		role:   RoleWrite,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.mapper = NewSpanMapper(l.system, l.clock)
	l.mapper.observer = l.observer
	return l
}

// Log implements tracelog.Logger.
func (l *QueryLog) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	query, ok := QueryFromData(data)
	if !ok {
		return
	}
	if l.logger != nil {
		l.logger.Log(ctx, level, msg, data)
	}
	if IsPrepare(msg, data) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.includeSchema && IsSchemaQuery(query) {
		if l.observer != nil {
			l.observer.SchemaQuerySkipped(l.name)
		}
		return
	}

	if query.Role == "" {
		query.Role = l.role
	}
	if l.performance {
		if !l.mapper.Bound() {
			if hub := tracing.HubFromContext(ctx); hub != nil {
				l.mapper.Bind(hub)
			}
		}
		l.mapper.Observe(query, l.name)
	}

	l.totalTime += query.Took
	l.totalRows += query.Rows
	l.role = query.Role
	l.queries = append(l.queries, query)

	if l.observer != nil {
		l.observer.QueryLogged(l.name, query.Role, query.Took)
	}
}

// Bind attaches the span mapper to hub.
func (l *QueryLog) Bind(hub *tracing.Hub) {
	l.mu.Lock()
	l.mapper.Bind(hub)
	l.mu.Unlock()
}

// Queries returns the logged queries in insertion order.
func (l *QueryLog) Queries() []LoggedQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LoggedQuery, len(l.queries))
	copy(out, l.queries)
	return out
}

func (l *QueryLog) TotalTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalTime
}

func (l *QueryLog) TotalRows() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalRows
}

// Role returns the role of the last logged query.
func (l *QueryLog) Role() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.role
}

func (l *QueryLog) Name() string {
	return l.name
}

// Logger returns the decorated logger, or nil.
func (l *QueryLog) Logger() tracelog.Logger {
	return l.logger
}

func (l *QueryLog) IncludeSchema() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.includeSchema
}

func (l *QueryLog) SetIncludeSchema(include bool) {
	l.mu.Lock()
	l.includeSchema = include
	l.mu.Unlock()
}

func (l *QueryLog) PerformanceMonitoring() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.performance
}

func (l *QueryLog) SetPerformanceMonitoring(enabled bool) {
	l.mu.Lock()
	l.performance = enabled
	l.mu.Unlock()
}
