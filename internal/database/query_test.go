package database

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFromData(t *testing.T) {
	queryErr := errors.New("relation does not exist")

	tests := []struct {
		name string
		data map[string]any
		ok   bool
		want LoggedQuery
	}{
		{name: "nil payload", data: nil},
		{name: "no query", data: map[string]any{"pid": uint32(10)}},
		{name: "empty sql", data: map[string]any{"sql": ""}},
		{
			name: "pgx query",
			data: map[string]any{"sql": "SELECT 1", "time": 3 * time.Millisecond, "commandTag": "SELECT 1"},
			ok:   true,
			want: LoggedQuery{Text: "SELECT 1", Took: 3 * time.Millisecond, Rows: 1},
		},
		{
			name: "update rows",
			data: map[string]any{"sql": "UPDATE posts SET title = $1", "commandTag": "UPDATE 7", "role": "read"},
			ok:   true,
			want: LoggedQuery{Text: "UPDATE posts SET title = $1", Rows: 7, Role: RoleRead},
		},
		{
			name: "failed query",
			data: map[string]any{"sql": "SELECT * FROM nope", "err": queryErr},
			ok:   true,
			want: LoggedQuery{Text: "SELECT * FROM nope", Err: queryErr},
		},
		{
			name: "copy row count",
			data: map[string]any{"tableName": pgx.Identifier{"posts"}, "columnNames": []string{"id", "title"}, "rowCount": int64(12)},
			ok:   true,
			want: LoggedQuery{Rows: 12},
		},
		{
			name: "structured query",
			data: map[string]any{"query": LoggedQuery{Text: "SELECT 2", Rows: 2}},
			ok:   true,
			want: LoggedQuery{Text: "SELECT 2", Rows: 2},
		},
		{
			name: "nil structured query",
			data: map[string]any{"query": (*LoggedQuery)(nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := QueryFromData(tt.data)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want.Text, q.Text)
			assert.Equal(t, tt.want.Took, q.Took)
			assert.Equal(t, tt.want.Rows, q.Rows)
			assert.Equal(t, tt.want.Role, q.Role)
			assert.Equal(t, tt.want.Err, q.Err)
		})
	}
}

func TestLoggedQueryString(t *testing.T) {
	q := LoggedQuery{Text: "SELECT 1"}
	assert.Equal(t, "SELECT 1", q.String())

	copyQuery, ok := QueryFromData(map[string]any{
		"tableName":   pgx.Identifier{"public", "posts"},
		"columnNames": []string{"id", "title"},
	})
	require.True(t, ok)
	assert.Equal(t, `COPY "public"."posts" (id, title) FROM STDIN`, copyQuery.String())

	assert.Empty(t, LoggedQuery{}.String())
}

func TestElapsedMs(t *testing.T) {
	assert.Equal(t, 10.0, LoggedQuery{Took: 10 * time.Millisecond}.ElapsedMs())
	assert.Equal(t, 0.5, LoggedQuery{Took: 500 * time.Microsecond}.ElapsedMs())
}
