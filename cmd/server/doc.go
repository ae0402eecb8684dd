// Package main is the entry point for the gin-sentry demo server.
//
// The server shows error tracking and performance monitoring installed into
// a gin application: every request opens a transaction, database queries of
// the request become spans, and errors are captured together with the
// queries that ran before them.
//
// Configuration:
//   - Environment variables (12-factor), optionally from a .env file
//   - A YAML or TOML file given with --config
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	SENTRY_DSN=https://key@o0.ingest.sentry.io/1 DATABASE_URL=postgres://localhost/app ./server --port 8000
//
//	# Development mode (colored logs, debug level, spans logged locally)
//	./server --dev --config config.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown with a final flush of pending events
package main
