// Package serve provides the HTTP server command.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/taxamap"
	"github.com/agentstation/taxamap/internal/cmd/emoji"
	"github.com/agentstation/taxamap/internal/server"
)

// shutdownTimeout bounds connection draining after a shutdown signal.
const shutdownTimeout = 30 * time.Second

// AppContext defines what the serve command needs from the app.
type AppContext interface {
	Client() (taxamap.Client, error)
	Logger() *zerolog.Logger
	ServerConfig() server.Config
}

// NewCommand creates the serve command. Flag defaults come from the
// server section of the app configuration.
func NewCommand(app AppContext) *cobra.Command {
	cfg := app.ServerConfig()
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Start the species API server with WebSocket and SSE events",
		Long: `Start the taxamap REST API server.

Features:
  - GET /api/v1/species/{query} resolves a species, researching it on a miss
  - WebSocket (/api/v1/events/ws) and SSE (/api/v1/events/stream) event feeds
  - In-memory profile cache, invalidated when research updates an entity
  - Rate limiting (requests per minute per IP)
  - API key authentication (key from server.api_key or TAXAMAP_SERVER_API_KEY)
  - Health, readiness and Prometheus metrics endpoints
  - OpenAPI documentation (/api/v1/openapi.json)`,
		Example: `  # Start on default port 8080
  taxamap serve

  # Start on custom port with authentication
  TAXAMAP_SERVER_API_KEY=secret taxamap serve --port 3000 --auth

  # Allow a browser app and bound research time per request
  taxamap serve --cors-origins https://app.example.com --resolve-timeout 60s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), app, cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "Bind address")
	flags.StringVar(&cfg.PathPrefix, "prefix", cfg.PathPrefix, "API path prefix")

	flags.BoolVar(&cfg.CORSEnabled, "cors", cfg.CORSEnabled, "Enable CORS for all origins")
	flags.StringSliceVar(&cfg.CORSOrigins, "cors-origins", cfg.CORSOrigins, "Allowed CORS origins (comma-separated)")

	flags.BoolVar(&cfg.AuthEnabled, "auth", cfg.AuthEnabled, "Enable API key authentication")
	flags.StringVar(&cfg.AuthHeader, "auth-header", cfg.AuthHeader, "Authentication header name")

	flags.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per minute per IP (0 to disable)")
	flags.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Profile cache TTL")
	flags.DurationVar(&cfg.ResolveTimeout, "resolve-timeout", cfg.ResolveTimeout, "Upper bound on one resolve, research included")

	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP read timeout")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP write timeout")
	flags.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "HTTP idle timeout")

	flags.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "Enable metrics endpoint")

	return cmd
}

// run starts the API server and blocks until ctx is canceled.
func run(ctx context.Context, app AppContext, cfg server.Config) error {
	logger := app.Logger()
	if cfg.CORSEnabled && len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if len(cfg.CORSOrigins) > 0 {
		cfg.CORSEnabled = true
	}

	client, err := app.Client()
	if err != nil {
		return err
	}

	srv, err := server.New(client, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Bool("auth", cfg.AuthEnabled).
		Int("rate_limit", cfg.RateLimit).
		Dur("cache_ttl", cfg.CacheTTL).
		Dur("resolve_timeout", cfg.ResolveTimeout).
		Msg("Starting API server")

	srv.Start()
	return startWithGracefulShutdown(ctx, srv.HTTPServer(), srv, logger)
}

// startWithGracefulShutdown serves until ctx is canceled, then drains
// connections and stops the background services.
func startWithGracefulShutdown(ctx context.Context, httpServer *http.Server, srv *server.Server, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		fmt.Printf("%s API server listening on %s\n", emoji.Info, httpServer.Addr)
		fmt.Println("   Press Ctrl+C to stop")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
		fmt.Printf("\n%s Shutting down API server...\n", emoji.Stop)

		// The parent context is already canceled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background services shutdown had issues")
		}

		logger.Info().Msg("Server stopped gracefully")
		fmt.Printf("%s API server stopped gracefully\n", emoji.Success)
		return nil
	}
}
