/*
Package database observes SQL executed during a request.

# Overview

Connections are registered by name in a Registry. Each Connection is a pgx
tracelog.Logger: pgx reports every executed statement to it, and it hands the
statement to the request-scoped QueryLog found in the query context, or to the
connection's own logger when the query runs outside a request.

A QueryLog decorates an optional existing logger. It always forwards the log
call, drops schema reflection noise unless asked to keep it, keeps running
totals for breadcrumbs, and, while performance monitoring is on, feeds a
SpanMapper that turns BEGIN/COMMIT pairs into db.transaction spans and every
other statement into a back-dated db.sql.query span.

# Usage

	registry := database.NewRegistry(logger)
	registry.Register(database.Config{Name: "default", URL: dsn, System: "postgresql"})
	pool, err := registry.Open(ctx, "default")

	router.Use(database.QueryMiddleware(registry, database.SessionConfig{}))
	router.Use(tracing.HTTPMiddleware(backend, tracing.WithStartHook(database.MonitoringHook())))
*/
package database
