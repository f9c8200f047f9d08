package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/taxamap/pkg/errors"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "server.port"},
		{"relative prefix", func(c *Config) { c.PathPrefix = "api" }, "server.prefix"},
		{"auth without key", func(c *Config) { c.AuthEnabled = true }, "server.api_key"},
		{"auth with key", func(c *Config) { c.AuthEnabled = true; c.APIKey = "k" }, ""},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, "server.rate_limit"},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }, "server.cache_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *errors.ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}
}

func TestConfigAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:8080", cfg.Addr())

	cfg.Host, cfg.Port = "::1", 9000
	assert.Equal(t, "[::1]:9000", cfg.Addr())
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Port: 1}.withDefaults()
	assert.Equal(t, DefaultConfig().CacheTTL, cfg.CacheTTL)
	assert.Equal(t, "X-API-Key", cfg.AuthHeader)
}
