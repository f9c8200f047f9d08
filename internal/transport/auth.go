package transport

import (
	"net/http"
	"net/url"
)

// Authenticator attaches a source API key to an outgoing request.
type Authenticator interface {
	Apply(req *http.Request, apiKey string)
	// Redact returns u as it may appear in logs.
	Redact(u *url.URL) string
}

// NoAuth sends requests unchanged. Most biodiversity APIs are open.
type NoAuth struct{}

// Apply does nothing.
func (NoAuth) Apply(*http.Request, string) {}

// Redact returns u with any userinfo password masked.
func (NoAuth) Redact(u *url.URL) string { return u.Redacted() }

// QueryAuth passes the key as a query parameter, the way NCBI E-utilities
// read api_key.
type QueryAuth struct {
	Param string
}

// Apply sets Param on the request URL, replacing any value already there.
func (a *QueryAuth) Apply(req *http.Request, apiKey string) {
	if req.URL == nil || a.Param == "" {
		return
	}
	q := req.URL.Query()
	q.Set(a.Param, apiKey)
	req.URL.RawQuery = q.Encode()
}

// Redact masks the value of Param.
func (a *QueryAuth) Redact(u *url.URL) string {
	q := u.Query()
	if !q.Has(a.Param) {
		return u.Redacted()
	}
	masked := *u
	q.Set(a.Param, "xxxxx")
	masked.RawQuery = q.Encode()
	return masked.Redacted()
}
