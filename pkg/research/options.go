package research

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/types"
)

// options holds the session budgets and retry policy.
type options struct {
	maxTurns         int
	timeout          time.Duration
	maxConsecutive   int
	unavailableRetry int
	backoff          time.Duration
	maxBackoff       time.Duration
	instructions     string
	callTimeouts     map[types.Capability]time.Duration
	logger           *zerolog.Logger
}

func defaultOptions() *options {
	return &options{
		maxTurns:         constants.DefaultMaxTurns,
		timeout:          constants.DefaultSessionTimeout,
		maxConsecutive:   constants.MaxConsecutiveToolErrors,
		unavailableRetry: constants.MaxUnavailableRetries,
		backoff:          constants.RetryBackoff,
		maxBackoff:       constants.MaxRetryBackoff,
		instructions:     DefaultInstructions,
		callTimeouts:     make(map[types.Capability]time.Duration),
		logger:           logging.Default(),
	}
}

// Option configures an Orchestrator.
type Option func(*options)

// WithMaxTurns sets the turn budget of a session.
func WithMaxTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// WithTimeout sets the wall-clock budget of a session.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetryPolicy sets how often an unavailable source is retried within a
// session and the base backoff, doubled on each attempt.
func WithRetryPolicy(retries int, backoff time.Duration) Option {
	return func(o *options) {
		if retries >= 0 {
			o.unavailableRetry = retries
		}
		if backoff > 0 {
			o.backoff = backoff
		}
	}
}

// WithCallTimeout overrides the registry's timeout for every call to
// capability c. A ToolCall.Timeout still wins over it.
func WithCallTimeout(c types.Capability, d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.callTimeouts[c] = d
		}
	}
}

// WithInstructions replaces the task instructions shown to the reasoner.
func WithInstructions(s string) Option {
	return func(o *options) {
		if s != "" {
			o.instructions = s
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
