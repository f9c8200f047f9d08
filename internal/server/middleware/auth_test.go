package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestDefaultAuthConfig(t *testing.T) {
	cfg := DefaultAuthConfig("/api/v1")
	if cfg.Enabled {
		t.Error("auth enabled by default")
	}
	want := []string{"/health", "/api/v1/health", "/api/v1/ready"}
	if len(cfg.PublicPaths) != len(want) {
		t.Fatalf("public paths %v, want %v", cfg.PublicPaths, want)
	}
	for i := range want {
		if cfg.PublicPaths[i] != want[i] {
			t.Errorf("public path %d = %s, want %s", i, cfg.PublicPaths[i], want[i])
		}
	}
}

func TestAuth(t *testing.T) {
	logger := zerolog.Nop()
	enabled := DefaultAuthConfig("/api/v1")
	enabled.Enabled = true
	enabled.APIKey = "secret"

	noKey := enabled
	noKey.APIKey = ""

	tests := []struct {
		name    string
		config  AuthConfig
		path    string
		headers map[string]string
		status  int
	}{
		{"disabled", DefaultAuthConfig("/api/v1"), "/api/v1/species/ulva", nil, http.StatusOK},
		{"public path", enabled, "/api/v1/health", nil, http.StatusOK},
		{"header key", enabled, "/api/v1/species/ulva", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer key", enabled, "/api/v1/species/ulva", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"raw authorization is not a key", enabled, "/api/v1/species/ulva", map[string]string{"Authorization": "secret"}, http.StatusUnauthorized},
		{"wrong key", enabled, "/api/v1/species/ulva", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"missing key", enabled, "/api/v1/species/ulva", nil, http.StatusUnauthorized},
		{"enabled without configured key", noKey, "/api/v1/species/ulva", map[string]string{"X-API-Key": ""}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			Auth(tt.config, &logger)(okHandler()).ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusUnauthorized && w.Header().Get("Content-Type") != "application/json" {
				t.Error("rejection is not a JSON envelope")
			}
		})
	}
}
