// Package gateway orchestrates the ep-private server components.
//
// # Overview
//
// The gateway owns the SQLite store, the session validator and the HTTP
// site, and runs them behind a single http.Server:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	err = gw.Run(ctx)
//
// Besides the site's routes it serves GET /health/ready, which answers 503
// when the database cannot be pinged.
//
// # Lifecycle
//
// Run returns once ctx is canceled. Shutdown then proceeds in order:
//
//  1. the HTTP server stops accepting and drains in-flight requests
//  2. the site's rate limiter sweeps stop
//  3. pending last_seen_at writes finish
//  4. the store is closed
//
// The drain is bounded by server.shutdown_timeout.
package gateway
