package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/taxamap/internal/server/response"
)

// healthStatus is the body of both health checks.
type healthStatus struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Streams *streamCounts `json:"streams,omitempty"`
	Cache   any           `json:"cache,omitempty"`
	// Sessions counts finished research sessions by outcome.
	Sessions map[string]uint64 `json:"sessions,omitempty"`
}

type streamCounts struct {
	WebSocket int `json:"websocket"`
	SSE       int `json:"sse"`
}

func (h *Handlers) uptime() string {
	return time.Since(h.metrics.started).Truncate(time.Second).String()
}

// HandleHealth handles GET /health and GET /api/v1/health.
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=healthStatus}
// @Router /health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, healthStatus{Status: "healthy", Uptime: h.uptime()})
}

// HandleReady handles GET /api/v1/ready. It reports the profile cache,
// connected event streams and research outcomes seen so far.
// @Summary Readiness check
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=healthStatus}
// @Router /ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, healthStatus{
		Status:   "ready",
		Uptime:   h.uptime(),
		Streams:  &streamCounts{WebSocket: h.wsHub.ClientCount(), SSE: h.sseBroadcaster.ClientCount()},
		Cache:    h.cache.GetStats(),
		Sessions: h.metrics.SessionCounts(),
	})
}
