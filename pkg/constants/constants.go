// Package constants provides shared constants used throughout taxamap:
// research budgets, per-capability timeouts, retry policy, limits and file
// permissions.
package constants

import "time"

// Research session budgets
const (
	// DefaultMaxTurns is the default number of reasoning turns per research session
	DefaultMaxTurns = 8

	// DefaultSessionTimeout is the default wall-clock budget of a research session
	DefaultSessionTimeout = 60 * time.Second

	// MaxConsecutiveToolErrors aborts a session as failed once reached
	MaxConsecutiveToolErrors = 3
)

// Capability default timeouts
const (
	LookupTimeout      = 10 * time.Second
	OccurrencesTimeout = 20 * time.Second
	MediaTimeout       = 15 * time.Second
	LiteratureTimeout  = 20 * time.Second
	MorphologyTimeout  = 20 * time.Second

	// DefaultHTTPTimeout bounds a single HTTP request to a source API
	DefaultHTTPTimeout = 30 * time.Second
)

// Retry policy for transient source failures
const (
	// MaxUnavailableRetries is the number of extra attempts after an unavailable error
	MaxUnavailableRetries = 2

	// RetryBackoff is the base backoff; attempt n waits RetryBackoff * 2^n
	RetryBackoff = 500 * time.Millisecond

	// MaxRetryBackoff caps any single wait, including source-declared Retry-After
	MaxRetryBackoff = 30 * time.Second
)

// Limits
const (
	// MaxMediaPerSource limits media records taken from one source call
	MaxMediaPerSource = 5

	// DefaultOccurrenceLimit is the default page size for occurrence searches
	DefaultOccurrenceLimit = 50

	// DefaultLiteratureLimit is the default number of references fetched per search
	DefaultLiteratureLimit = 10

	// MaxResponseBytes caps how much of a source response body is read
	MaxResponseBytes = 10 << 20

	// DefaultConcurrency is the default number of parallel resolves in batch mode
	DefaultConcurrency = 4
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)
