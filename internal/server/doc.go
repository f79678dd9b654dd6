// Package server provides the HTTP endpoint layer of coachcontacts.
//
// # Key Components
//
// NewHandler builds a chi router over a contactsync.Service:
//   - REST routes under /coach/{coachId}/sheets-contacts and
//     /coach/{coachId}/init-sheets-contacts
//   - the flat POST routes under /sheets-contacts/ used by older dashboards,
//     which take coach_id in the body and answer with {success: true, ...}
//   - POST /oauth/exchange and DELETE /session to open and close sessions
//   - /healthz, /readyz and /healthz/detailed from HealthChecker
//
// Callers identify their session with the session-id header (X-Session-ID is
// also accepted). Failures are rendered as {error, message}; an invalid or
// expired session yields 401 with requiresAuth set so the dashboard can
// restart the Google sign-in.
//
// Every response carries CORS headers and OPTIONS is answered with 204 before
// any session check. Requests are counted per chi route pattern.
//
// HTTPServer runs the router, with the MCP streamable-http transport at /mcp,
// and MetricsServer exposes Prometheus metrics on a separate port.
//
// ServerContext holds what the HTTP layer and the MCP tools share.
package server
