// Package server provides the HTTP API for taxamap.
//
// The server exposes species resolution over JSON, streams resolver events
// over WebSocket and SSE, and serves health checks, metrics and the OpenAPI
// document. It is built from these parts:
//
//   - Server: lifecycle of the event broker and streaming transports
//   - Config: listener, auth, CORS, rate limit and cache settings
//   - Router: route registration and the middleware chain
//   - Handlers: HTTP request handlers
//
// Usage:
//
//	srv, err := server.New(client, server.DefaultConfig(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.Start()
//	defer srv.Shutdown(context.Background())
//	log.Fatal(srv.HTTPServer().ListenAndServe())
package server

//go:generate gomarkdoc --output README.md .
