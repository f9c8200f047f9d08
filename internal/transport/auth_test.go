package transport

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const esearch = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"

func TestNoAuth(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, esearch+"?db=pubmed", nil)
	require.NoError(t, err)

	NoAuth{}.Apply(req, "secret")
	assert.Empty(t, req.Header)
	assert.Equal(t, "db=pubmed", req.URL.RawQuery)
}

func TestQueryAuth(t *testing.T) {
	auth := &QueryAuth{Param: "api_key"}

	t.Run("keeps existing parameters", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, esearch+"?db=pubmed&term=ulva", nil)
		require.NoError(t, err)

		auth.Apply(req, "secret")
		q := req.URL.Query()
		assert.Equal(t, "secret", q.Get("api_key"))
		assert.Equal(t, "pubmed", q.Get("db"))
		assert.Equal(t, "ulva", q.Get("term"))
	})

	t.Run("replaces a stale key", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, esearch+"?api_key=old", nil)
		require.NoError(t, err)

		auth.Apply(req, "new")
		assert.Equal(t, []string{"new"}, req.URL.Query()["api_key"])
	})

	t.Run("nil url", func(t *testing.T) {
		assert.NotPanics(t, func() { auth.Apply(&http.Request{}, "secret") })
	})
}

func TestRedact(t *testing.T) {
	u, err := url.Parse(esearch + "?db=pubmed&api_key=secret")
	require.NoError(t, err)

	masked := (&QueryAuth{Param: "api_key"}).Redact(u)
	assert.NotContains(t, masked, "secret")
	assert.Contains(t, masked, "db=pubmed")
	assert.Equal(t, "secret", u.Query().Get("api_key"), "original url untouched")

	plain, err := url.Parse(esearch + "?db=pubmed")
	require.NoError(t, err)
	assert.Equal(t, plain.String(), (&QueryAuth{Param: "api_key"}).Redact(plain))
	assert.Equal(t, plain.String(), NoAuth{}.Redact(plain))
}
