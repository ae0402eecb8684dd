/*
Package monitoring provides Prometheus metrics for the service.

# Overview

Metrics tracks HTTP requests, the queries kept by request query logs, the
queries mapped onto spans and the errors sent to the tracing backend. It
implements database.Observer and capture.Observer so both layers report into
it without importing Prometheus.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	logs := registry.NewSession(database.SessionConfig{Observer: metrics})

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
