package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/mock"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/LordSimal/gin-sentry/internal/backend/memory"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// MockLogger is a tracelog.Logger recording every call.
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	m.Called(ctx, level, msg, data)
}

// recordingObserver counts Observer callbacks.
type recordingObserver struct {
	mu      sync.Mutex
	logged  int
	skipped int
	ops     []string
}

func (o *recordingObserver) QueryLogged(string, Role, time.Duration) {
	o.mu.Lock()
	o.logged++
	o.mu.Unlock()
}

func (o *recordingObserver) SchemaQuerySkipped(string) {
	o.mu.Lock()
	o.skipped++
	o.mu.Unlock()
}

func (o *recordingObserver) SpanMapped(_, op string) {
	o.mu.Lock()
	o.ops = append(o.ops, op)
	o.mu.Unlock()
}

// newTracedHub returns a hub whose ambient span is an open transaction.
func newTracedHub(t *testing.T, clock clockz.Clock) (*memory.Backend, *tracing.Hub, tracing.Span) {
	t.Helper()

	backend := memory.New(zap.NewNop(), memory.WithClock(clock))
	t.Cleanup(backend.Close)

	tx := backend.StartTransaction(context.Background(), tracing.TransactionOptions{
		Name: "GET /posts",
		Op:   tracing.OpHTTPServer,
	})
	hub := tracing.NewHub(backend)
	hub.SetSpan(tx)
	return backend, hub, tx
}

func queryData(sql string, took time.Duration, tag string) map[string]any {
	return map[string]any{
		"sql":        sql,
		"args":       []any{},
		"time":       took,
		"commandTag": tag,
	}
}

func logQuery(ctx context.Context, l *QueryLog, sql string, took time.Duration, tag string) {
	l.Log(ctx, tracelog.LogLevelInfo, "Query", queryData(sql, took, tag))
}
