package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Role is the role of the connection a query ran on.
type Role string

const (
	RoleRead  Role = "read"
	RoleWrite Role = "write"
)

// LoggedQuery is one executed statement.
type LoggedQuery struct {
	Text string
	Args []any
	Took time.Duration
	Rows int64
	Role Role
	Err  error
	// Data is the raw driver payload the query was built from.
	Data map[string]any
}

// ElapsedMs returns Took in milliseconds.
func (q LoggedQuery) ElapsedMs() float64 {
	return float64(q.Took) / float64(time.Millisecond)
}

// String returns the serialized form of the statement. COPY payloads carry no
// SQL text and are rendered from their table and column names.
func (q LoggedQuery) String() string {
	if q.Text != "" {
		return q.Text
	}
	table, ok := q.Data["tableName"]
	if !ok {
		return ""
	}
	return fmt.Sprintf("COPY %s (%s) FROM STDIN", identifier(table), strings.Join(columns(q.Data["columnNames"]), ", "))
}

// QueryFromData extracts a query from a log payload. It accepts a LoggedQuery
// stored under "query", or pgx tracelog data.
func QueryFromData(data map[string]any) (LoggedQuery, bool) {
	if len(data) == 0 {
		return LoggedQuery{}, false
	}

	switch v := data["query"].(type) {
	case LoggedQuery:
		return v, true
	case *LoggedQuery:
		if v != nil {
			return *v, true
		}
		return LoggedQuery{}, false
	}

	sql, _ := data["sql"].(string)
	_, isCopy := data["tableName"]
	if sql == "" && !isCopy {
		return LoggedQuery{}, false
	}

	q := LoggedQuery{Text: sql, Data: data}
	if args, ok := data["args"].([]any); ok {
		q.Args = args
	}
	if took, ok := data["time"].(time.Duration); ok && took > 0 {
		q.Took = took
	}
	q.Rows = rowsFromData(data)
	switch role := data["role"].(type) {
	case Role:
		q.Role = role
	case string:
		q.Role = Role(role)
	}
	if err, ok := data["err"].(error); ok {
		q.Err = err
	}
	return q, true
}

// IsPrepare reports whether a tracelog payload records statement preparation
// rather than an execution. pgx logs a Prepare before the Query of every
// statement-cache miss, both carrying the same SQL.
func IsPrepare(msg string, data map[string]any) bool {
	if msg == "Prepare" {
		return true
	}
	_, ok := data["alreadyPrepared"]
	return ok
}

func rowsFromData(data map[string]any) int64 {
	var rows int64
	switch v := data["rowCount"].(type) {
	case int64:
		rows = v
	case int:
		rows = int64(v)
	default:
		switch tag := data["commandTag"].(type) {
		case string:
			rows = pgconn.NewCommandTag(tag).RowsAffected()
		case pgconn.CommandTag:
			rows = tag.RowsAffected()
		}
	}
	if rows < 0 {
		return 0
	}
	return rows
}

func identifier(v any) string {
	switch id := v.(type) {
	case pgx.Identifier:
		return id.Sanitize()
	case []string:
		return pgx.Identifier(id).Sanitize()
	default:
		return fmt.Sprint(v)
	}
}

func columns(v any) []string {
	switch cols := v.(type) {
	case []string:
		return cols
	case pgx.Identifier:
		return cols
	default:
		return nil
	}
}
