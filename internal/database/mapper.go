package database

import (
	"strings"

	"github.com/zoobzio/clockz"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

type statementKind int

const (
	statementQuery statementKind = iota
	statementBegin
	statementCommit
	statementRollback
)

func classify(text string) statementKind {
	stmt := strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";")))
	switch {
	case stmt == "BEGIN" || strings.HasPrefix(stmt, "BEGIN "):
		return statementBegin
	case stmt == "COMMIT":
		return statementCommit
	case stmt == "ROLLBACK":
		return statementRollback
	default:
		return statementQuery
	}
}

// SpanMapper turns logged queries into spans under the ambient span of a hub.
//
// BEGIN opens a db.transaction span and makes it ambient until the matching
// COMMIT or ROLLBACK. Every other statement becomes a finished db.sql.query
// leaf whose start is reconstructed from the reported elapsed time.
type SpanMapper struct {
	system   string
	clock    clockz.Clock
	observer Observer

	hub   *tracing.Hub
	stack *tracing.SpanStack
}

// NewSpanMapper creates an unbound mapper. system is reported as db.system.
func NewSpanMapper(system string, clock clockz.Clock) *SpanMapper {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &SpanMapper{system: system, clock: clock}
}

// Bind attaches the mapper to hub. Spans opened on a previous hub are
// abandoned.
func (m *SpanMapper) Bind(hub *tracing.Hub) {
	m.hub = hub
	m.stack = tracing.NewSpanStack(hub)
}

// Bound reports whether Bind was called with a non-nil hub.
func (m *SpanMapper) Bound() bool {
	return m.hub != nil
}

// Open returns the number of transaction spans still waiting for COMMIT.
func (m *SpanMapper) Open() int {
	if m.stack == nil {
		return 0
	}
	return m.stack.Len()
}

// Observe maps q, executed on the named connection, to spans.
func (m *SpanMapper) Observe(q LoggedQuery, connection string) {
	if m.hub == nil {
		return
	}
	parent := m.hub.Span()
	if parent == nil {
		return
	}

	switch classify(q.Text) {
	case statementBegin:
		span := parent.StartChild(tracing.SpanOptions{
			Op: tracing.OpDBTransaction,
			Data: map[string]any{
				"db.system":          m.system,
				"db.connection_name": connection,
			},
		})
		m.stack.Push(span)
		m.mapped(connection, tracing.OpDBTransaction)
	case statementCommit:
		if span := m.stack.Pop(); span != nil {
			span.SetStatus(tracing.StatusOK)
			span.Finish()
		}
	case statementRollback:
		if span := m.stack.Pop(); span != nil {
			span.SetStatus(tracing.StatusAborted)
			span.Finish()
		}
	default:
		now := m.clock.Now()
		span := parent.StartChild(tracing.SpanOptions{
			Op:          tracing.OpDBQuery,
			Description: q.String(),
			Start:       now.Add(-q.Took),
			Data: map[string]any{
				"db.system":          m.system,
				"db.connection_name": connection,
				"db.role":            string(q.Role),
				"db.rows_affected":   q.Rows,
			},
		})
		if q.Err != nil {
			span.SetData("db.error", q.Err.Error())
			span.SetStatus(tracing.StatusInternalError)
		} else {
			span.SetStatus(tracing.StatusOK)
		}
		span.FinishAt(now)
		m.mapped(connection, tracing.OpDBQuery)
	}
}

func (m *SpanMapper) mapped(connection, op string) {
	if m.observer != nil {
		m.observer.SpanMapped(connection, op)
	}
}
