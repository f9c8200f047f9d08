// Package handlers provides the HTTP request handlers for the taxamap API.
//
// Handlers are organized by concern:
//
//   - species.go: species resolution with an in-memory profile cache
//   - health.go: liveness and readiness checks
//   - realtime.go: WebSocket and SSE event streams
//   - metrics.go: Prometheus collectors for resolves and research sessions
//   - openapi.go: the embedded OpenAPI specification
//
// Handlers receive every dependency through the Handlers struct.
package handlers

//go:generate gomarkdoc --output README.md .
