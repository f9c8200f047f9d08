package server

import (
	"net/http"
	"strings"

	"github.com/agentstation/taxamap/internal/server/handlers"
	"github.com/agentstation/taxamap/internal/server/middleware"
)

func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(
		s.client,
		s.cache,
		s.broker,
		s.wsHub,
		s.sseBroadcaster,
		s.upgrader,
		s.metrics,
		s.config.ResolveTimeout,
		s.logger,
	)

	s.registerRoutes(mux, h)
	return s.applyMiddleware(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Health checks stay public when auth is enabled.
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/ready", h.HandleReady)

	mux.HandleFunc(prefix+"/species/", func(w http.ResponseWriter, r *http.Request) {
		query := extractPathParam(r.URL.EscapedPath(), prefix+"/species/")
		h.HandleSpecies(w, r, query)
	})

	mux.HandleFunc(prefix+"/events/ws", h.HandleWebSocket)
	mux.HandleFunc(prefix+"/events/stream", h.HandleSSE)

	mux.HandleFunc(prefix+"/openapi.json", h.HandleOpenAPIJSON)
	mux.HandleFunc(prefix+"/openapi.yaml", h.HandleOpenAPIYAML)

	if s.config.MetricsEnabled {
		mux.HandleFunc("/metrics", h.HandleMetrics)
	}
}

// applyMiddleware wraps handler so that recovery runs outermost, then
// logging, CORS, auth and rate limiting.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	if s.rateLimiter != nil {
		handler = middleware.RateLimit(s.rateLimiter)(handler)
	}

	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig(cfg.PathPrefix)
		authConfig.Enabled = true
		authConfig.APIKey = cfg.APIKey
		authConfig.HeaderName = cfg.AuthHeader
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(handler)
}

// extractPathParam returns the first path segment after prefix. Names carry
// spaces, so the segment is returned still escaped.
func extractPathParam(path, prefix string) string {
	trimmed := strings.TrimPrefix(path, prefix)
	first, _, _ := strings.Cut(trimmed, "/")
	return first
}
