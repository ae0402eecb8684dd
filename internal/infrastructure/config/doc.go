// Package config provides 12-factor configuration for the gin-sentry service.
//
// Configuration is loaded from environment variables with defaults. A YAML or
// TOML file can be laid over the environment, and the flat Sentry settings map
// of the plugin can be merged into SentryConfig.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS, shutdown)
//   - Logging: Log level and output format
//   - Sentry: DSN, backend selection, in-app rules, query logging and tracing
//   - Database: Connection URL and named connections
//   - Metrics: Prometheus endpoint
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if err := config.LoadFile("config.yaml", cfg); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS, SHUTDOWN_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - SENTRY_DSN, SENTRY_BACKEND, SENTRY_ENVIRONMENT, SENTRY_RELEASE, ...
//   - DATABASE_URL, DATABASE_LOG, DATABASE_SENTRY_LOG
//   - METRICS_ENABLED, METRICS_PATH
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
