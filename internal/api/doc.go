// Package api implements the HTTP REST API and WebSocket event stream for
// CDL Core.
//
// This package provides:
//   - REST endpoints for experiments, results, accounts and the audit trail
//   - the Authorization Gate middleware (HS256 bearer tokens, session check)
//   - a WebSocket hub that relays lifecycle events to subscribed clients
//   - Prometheus metrics at /metrics
//
// # Architecture
//
// Handlers decode the request, pass the caller's auth.Identity explicitly to
// the domain services in internal/experiment and internal/result, and map
// their sentinel errors to the JSON error body {"status","code","message"}.
// Audit entries and lifecycle events are side effects after a successful
// commit and never fail the request.
//
// # Security
//
// Every route except health, register, login and /metrics requires a bearer
// token. All token failures produce the same 401 body. WebSocket clients
// authenticate with a single-use ticket from POST /auth/ws-ticket, or with
// the bearer token in the token query parameter.
package api
