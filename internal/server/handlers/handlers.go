package handlers

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap"
	"github.com/agentstation/taxamap/internal/server/cache"
	"github.com/agentstation/taxamap/internal/server/events"
	"github.com/agentstation/taxamap/internal/server/sse"
	ws "github.com/agentstation/taxamap/internal/server/websocket"
)

// Handlers holds the dependencies shared by every handler.
type Handlers struct {
	client         taxamap.Client
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	metrics        *Metrics
	resolveTimeout time.Duration
	logger         *zerolog.Logger
}

// New creates a Handlers instance.
func New(
	client taxamap.Client,
	cache *cache.Cache,
	broker *events.Broker,
	wsHub *ws.Hub,
	sseBroadcaster *sse.Broadcaster,
	upgrader websocket.Upgrader,
	metrics *Metrics,
	resolveTimeout time.Duration,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		client:         client,
		cache:          cache,
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader:       upgrader,
		metrics:        metrics,
		resolveTimeout: resolveTimeout,
		logger:         logger,
	}
}
