package database

import "strings"

// IsSchemaQuery reports whether the statement was issued to introspect the
// database rather than to serve the application.
func IsSchemaQuery(q LoggedQuery) bool {
	text := q.Text
	if text == "" {
		text = q.String()
	}

	return strings.Contains(text, "FROM information_schema") ||
		// Postgres
		strings.Contains(text, "FROM pg_catalog") ||
		// MySQL
		strings.HasPrefix(text, "SHOW TABLE") ||
		strings.HasPrefix(text, "SHOW FULL COLUMNS") ||
		strings.HasPrefix(text, "SHOW INDEXES") ||
		// SQLite
		strings.Contains(text, "FROM sqlite_master") ||
		strings.HasPrefix(text, "PRAGMA") ||
		// SQL Server
		strings.Contains(text, "FROM INFORMATION_SCHEMA") ||
		strings.Contains(text, "FROM sys.")
}
