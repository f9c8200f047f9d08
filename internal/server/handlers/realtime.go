package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/agentstation/taxamap/internal/server/events"
	ws "github.com/agentstation/taxamap/internal/server/websocket"
)

// HandleWebSocket handles WebSocket connections at /api/v1/events/ws.
// @Summary WebSocket event stream
// @Description species.resolved and research.finished events over WebSocket
// @Tags events
// @Success 101 "Switching Protocols"
// @Router /events/ws [get].
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	client := ws.NewClient(id, h.wsHub, conn)
	h.wsHub.Register(client)
	h.broker.Publish(events.ClientConnected, map[string]any{
		"client_id": id,
		"transport": "websocket",
	})

	go client.WritePump()
	go client.ReadPump()
}

// HandleSSE handles Server-Sent Events at /api/v1/events/stream.
// @Summary SSE event stream
// @Description species.resolved and research.finished events as Server-Sent Events
// @Tags events
// @Produce text/event-stream
// @Success 200 "Event stream"
// @Router /events/stream [get].
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
