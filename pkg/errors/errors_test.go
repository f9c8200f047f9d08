package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/agentstation/taxamap/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "entity",
			ID:       "ulva lactuca",
		}
		assert.Equal(t, "entity ulva lactuca not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("with reason", func(t *testing.T) {
		err := pkgerrors.NewNotFoundError("entity", "foo", "three consecutive tool errors")
		assert.Equal(t, "entity foo not found: three consecutive tool errors", err.Error())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("entity", "test", "")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "query",
			Message: "cannot be empty",
		}
		assert.Equal(t, "validation failed for field query: cannot be empty", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "empty priority table"}
		assert.Equal(t, "validation failed: empty priority table", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})
}

func TestSourceError(t *testing.T) {
	tests := []struct {
		kind   pkgerrors.SourceErrorKind
		target error
	}{
		{pkgerrors.KindNotFound, pkgerrors.ErrNotFound},
		{pkgerrors.KindUnavailable, pkgerrors.ErrSourceUnavailable},
		{pkgerrors.KindRateLimited, pkgerrors.ErrRateLimited},
		{pkgerrors.KindMalformed, pkgerrors.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := pkgerrors.NewSourceError("worms", "lookup_by_name", tt.kind, errors.New("boom"))
			assert.True(t, errors.Is(err, tt.target))
			assert.Contains(t, err.Error(), "worms/lookup_by_name")
			assert.Contains(t, err.Error(), "boom")
		})
	}

	t.Run("kinds do not overlap", func(t *testing.T) {
		err := pkgerrors.NewSourceError("gbif", "get_media", pkgerrors.KindMalformed, nil)
		assert.False(t, pkgerrors.IsSourceUnavailable(err))
		assert.False(t, pkgerrors.IsRetryable(err))
	})
}

func TestAPIError(t *testing.T) {
	t.Run("status mapping", func(t *testing.T) {
		assert.True(t, pkgerrors.IsNotFound(pkgerrors.NewAPIError("gbif", 404, "missing")))
		assert.True(t, pkgerrors.IsRateLimited(pkgerrors.NewAPIError("gbif", 429, "slow down")))
		assert.True(t, pkgerrors.IsSourceUnavailable(pkgerrors.NewAPIError("gbif", 503, "down")))
		assert.False(t, pkgerrors.IsSourceUnavailable(pkgerrors.NewAPIError("gbif", 400, "bad")))
	})

	t.Run("with wrapped error", func(t *testing.T) {
		baseErr := errors.New("connection timeout")
		err := &pkgerrors.APIError{
			Source:  "zenodo",
			Message: "request failed",
			Err:     baseErr,
		}
		assert.Contains(t, err.Error(), "zenodo")
		assert.Equal(t, baseErr, err.Unwrap())
	})
}

func TestAsSourceError(t *testing.T) {
	t.Run("rate limit keeps retry after", func(t *testing.T) {
		api := pkgerrors.NewAPIError("pubmed", 429, "too many requests")
		api.RetryAfter = 2 * time.Second
		se := pkgerrors.AsSourceError("pubmed", "get_literature", fmt.Errorf("search: %w", api))
		require.NotNil(t, se)
		assert.Equal(t, pkgerrors.KindRateLimited, se.Kind)
		assert.Equal(t, 2*time.Second, se.RetryAfter)
	})

	t.Run("client error is malformed", func(t *testing.T) {
		se := pkgerrors.AsSourceError("worms", "lookup_by_name", pkgerrors.NewAPIError("worms", 400, "bad"))
		assert.Equal(t, pkgerrors.KindMalformed, se.Kind)
	})

	t.Run("parse error is malformed", func(t *testing.T) {
		se := pkgerrors.AsSourceError("worms", "lookup_by_name", pkgerrors.WrapParse("json", "", errors.New("eof")))
		assert.Equal(t, pkgerrors.KindMalformed, se.Kind)
	})

	t.Run("unknown error is unavailable", func(t *testing.T) {
		se := pkgerrors.AsSourceError("worms", "lookup_by_name", errors.New("dial tcp: refused"))
		assert.Equal(t, pkgerrors.KindUnavailable, se.Kind)
		assert.True(t, pkgerrors.IsRetryable(se))
	})

	t.Run("existing source error passes through", func(t *testing.T) {
		in := pkgerrors.NewSourceError("gbif", "get_occurrences", pkgerrors.KindNotFound, nil)
		assert.Same(t, in, pkgerrors.AsSourceError("other", "other", in))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, pkgerrors.AsSourceError("a", "b", nil))
	})
}

func TestStoreError(t *testing.T) {
	t.Run("write operations", func(t *testing.T) {
		err := pkgerrors.WrapStore("upsert", "abc", errors.New("constraint failed"))
		assert.True(t, errors.Is(err, pkgerrors.ErrStoreWrite))
		assert.True(t, pkgerrors.IsRetryable(err))
		assert.Contains(t, err.Error(), "abc")
	})

	t.Run("read operations are not write failures", func(t *testing.T) {
		err := pkgerrors.WrapStore("get", "abc", errors.New("disk io"))
		assert.False(t, errors.Is(err, pkgerrors.ErrStoreWrite))
	})

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapStore("upsert", "", nil))
	})
}

func TestConfigError(t *testing.T) {
	err := pkgerrors.NewConfigError("authority", "priority table is empty", nil)
	assert.Contains(t, err.Error(), "authority")
	assert.Contains(t, err.Error(), "priority table is empty")
}

func TestTimeoutError(t *testing.T) {
	err := pkgerrors.NewTimeoutError("research", 60*time.Second)
	assert.Equal(t, "operation research timed out after 1m0s", err.Error())
	assert.True(t, pkgerrors.IsTimeout(err))
	assert.True(t, pkgerrors.IsRetryable(err))
}
