// Package server exposes the mirrored chart of accounts over HTTP.
//
// # Routes
//
//	GET  /health               liveness probe
//	GET  /api/accounts         roll-up tree plus the number of stored accounts
//	GET  /api/accounts/report  HTML report (?format=markdown for the source)
//	GET  /api/logs             most recent sync log entries (?limit=, default 50)
//	POST /api/sync             run one sync pass; 409 while another pass runs,
//	                           503 during shutdown
//
// POST /api/sync requires a bearer JWT when auth.jwt_secret is configured.
//
// # Lifecycle
//
// New opens the configured store and builds the sync engine and scheduler.
// Run listens on server.http_addr, or on port 80 of the tailnet when
// tailscale.enabled is set, starts the schedule, and shuts everything down
// when its context is canceled. Shutdown cancels in-flight sync runs and
// waits for them to record their log entries before closing the store.
package server
