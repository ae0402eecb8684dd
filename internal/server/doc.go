// Package server provides HTTP server setup and initialization for the demo
// service.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Error tracking and performance monitoring through the plugin
//   - Middleware stack (CORS, rate limiting, metrics)
//   - Database connections with request query logs
//
// Server Lifecycle:
//  1. Load configuration from environment, .env and config file
//  2. Initialize logger (production or development)
//  3. Register and open database connections
//  4. Initialize the plugin (backend only when a DSN is set)
//  5. Setup HTTP routes and middleware
//  6. Start HTTP server
//  7. Graceful shutdown on signal, flushing the tracing backend
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run()
//	defer srv.Shutdown(context.Background())
package server
