// Package server provides the HTTP server for the operator console.
//
// The console serves three concerns:
//
//   - Dashboard serving: the embedded console page at "/"
//   - State API: the current polling state at "/api/state" and a
//     Server-Sent Events stream of changes at "/api/sse"
//   - Session control: start, stop and trigger endpoints under
//     "/api/sessions" and "/api/crawls", delegated to a [Controller]
//
// Routing uses chi. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
package server
