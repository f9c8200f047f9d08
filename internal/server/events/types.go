// Package events fans resolver activity out to the server's streaming
// transports.
//
// The resolver's hooks publish into a Broker, and every transport
// (WebSocket, SSE) is registered as a Subscriber, so each transport sees the
// same ordered stream without knowing where events come from.
package events

import "time"

// EventType names a resolver event.
type EventType string

// Event types.
const (
	// SpeciesResolved is published after every successful resolve, whether
	// served from the store or produced by research.
	SpeciesResolved EventType = "species.resolved"

	// ResearchFinished is published when a research session terminates,
	// carrying its summary.
	ResearchFinished EventType = "research.finished"

	// ClientConnected is published by the transports themselves.
	ClientConnected EventType = "client.connected"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
