package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap"
	"github.com/agentstation/taxamap/internal/server/cache"
	"github.com/agentstation/taxamap/internal/server/events"
	"github.com/agentstation/taxamap/internal/server/events/adapters"
	"github.com/agentstation/taxamap/internal/server/handlers"
	"github.com/agentstation/taxamap/internal/server/middleware"
	"github.com/agentstation/taxamap/internal/server/sse"
	ws "github.com/agentstation/taxamap/internal/server/websocket"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/taxa"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	client         taxamap.Client
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	rateLimiter    *middleware.RateLimiter
	metrics        *handlers.Metrics
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	startTime      time.Time
}

// New creates a server around client. Hooks are registered on client so
// resolves and research sessions are published to the event streams.
func New(client taxamap.Client, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if client == nil {
		return nil, errors.NewConfigError("server", "client is required", nil)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)

	// Both transports see the same stream.
	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		client:         client,
		cache:          cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		metrics:        handlers.NewMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	if cfg.RateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(cfg.RateLimit, logger)
	}

	s.connectHooks()
	s.registerGauges()
	return s, nil
}

// registerGauges exposes the cache and stream client counts on /metrics.
func (s *Server) registerGauges() {
	s.metrics.Gauge("taxamap_cache_items", "Profiles held by the response cache", nil,
		func() float64 { return float64(s.cache.ItemCount()) })
	s.metrics.Gauge("taxamap_stream_clients", "Connected event stream clients",
		prometheus.Labels{"transport": "websocket"},
		func() float64 { return float64(s.wsHub.ClientCount()) })
	s.metrics.Gauge("taxamap_stream_clients", "Connected event stream clients",
		prometheus.Labels{"transport": "sse"},
		func() float64 { return float64(s.sseBroadcaster.ClientCount()) })
}

// connectHooks publishes client activity to the broker and keeps the
// profile cache consistent with fresh merges.
func (s *Server) connectHooks() {
	s.client.OnResolved(func(p *taxa.Profile) {
		if !p.FromStore {
			// New research may have changed an entity that other
			// queries already cached.
			s.cache.Invalidate(p.Entity.ID)
		}
		s.broker.Publish(events.SpeciesResolved, map[string]any{
			"id":              p.Entity.ID,
			"scientific_name": p.Entity.ScientificName,
			"completeness":    p.Completeness,
			"partial":         p.Partial,
			"from_store":      p.FromStore,
		})
	})

	s.client.OnResearched(func(sum research.Summary) {
		s.metrics.ObserveResearch(sum)
		s.broker.Publish(events.ResearchFinished, sum)
	})

	s.logger.Debug().Msg("client hooks connected to event broker")
}

// Start runs the background services until Shutdown.
func (s *Server) Start() {
	s.run(s.broker.Run)
	s.run(s.wsHub.Run)
	s.run(s.sseBroadcaster.Run)
	if s.rateLimiter != nil {
		s.run(func(ctx context.Context) { s.rateLimiter.Run(ctx, 5*time.Minute) })
	}
	s.logger.Debug().Msg("background services started")
}

func (s *Server) run(fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// HTTPServer returns an http.Server for the configured address and
// timeouts serving Handler.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Shutdown stops the background services and waits for them, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("background services stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("background services shutdown timed out")
		return ctx.Err()
	}
}

// Cache returns the profile cache.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Broker returns the event broker.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// Metrics returns the resolve counters.
func (s *Server) Metrics() *handlers.Metrics {
	return s.metrics
}

// StartTime returns when the server was created.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
