package server

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/taxamap/pkg/errors"
)

// Config holds server configuration.
type Config struct {
	// Listener
	Host string
	Port int

	// API
	PathPrefix string

	// CORS
	CORSEnabled bool
	CORSOrigins []string

	// Authentication
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// Performance
	RateLimit      int // requests per minute per client, 0 disables
	CacheTTL       time.Duration
	ResolveTimeout time.Duration // upper bound on one HTTP resolve, research included

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Features
	MetricsEnabled bool
}

// DefaultConfig returns a Config with sensible defaults. WriteTimeout
// leaves room for a full research session behind one request.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		PathPrefix:     "/api/v1",
		CORSOrigins:    []string{},
		AuthHeader:     "X-API-Key",
		RateLimit:      100,
		CacheTTL:       5 * time.Minute,
		ResolveTimeout: 90 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   100 * time.Second,
		IdleTimeout:    120 * time.Second,
		MetricsEnabled: true,
	}
}

// Addr returns the listen address, host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports the first setting the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return errors.NewValidationError("server.port", c.Port, "must be between 0 and 65535")
	case c.PathPrefix != "" && !strings.HasPrefix(c.PathPrefix, "/"):
		return errors.NewValidationError("server.prefix", c.PathPrefix, "must start with /")
	case c.AuthEnabled && c.APIKey == "":
		return errors.NewValidationError("server.api_key", "", "required when authentication is enabled")
	case c.RateLimit < 0:
		return errors.NewValidationError("server.rate_limit", c.RateLimit, "must not be negative")
	case c.CacheTTL < 0 || c.ResolveTimeout < 0:
		return errors.NewValidationError("server.cache_ttl", c.CacheTTL, "durations must not be negative")
	}
	return nil
}

// withDefaults fills zero durations and the auth header from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheTTL == 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.AuthHeader == "" {
		c.AuthHeader = d.AuthHeader
	}
	return c
}
