package reconciler

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap/pkg/authority"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
)

// options configures a merger.
type options struct {
	strategy Strategy
	tracking bool
	logger   *zerolog.Logger
}

func defaultOptions() *options {
	return &options{
		tracking: true,
		logger:   logging.Default(),
	}
}

// Option is a function that configures a Merger.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// newOptions returns merger options with default values.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithStrategy sets the conflict resolution strategy.
func WithStrategy(strategy Strategy) Option {
	return func(o *options) error {
		if strategy == nil {
			return &errors.ValidationError{
				Field:   "strategy",
				Message: "cannot be nil",
			}
		}
		o.strategy = strategy
		return nil
	}
}

// WithAuthorities resolves conflicts with the given priority table.
func WithAuthorities(table *authority.Table) Option {
	return func(o *options) error {
		if table == nil {
			return &errors.ValidationError{
				Field:   "authorities",
				Message: "cannot be nil",
			}
		}
		o.strategy = NewAuthorityStrategy(table)
		return nil
	}
}

// WithProvenance enables field-level tracking in merge results.
func WithProvenance(enabled bool) Option {
	return func(o *options) error {
		o.tracking = enabled
		return nil
	}
}

// WithLogger sets the logger used for conflict and skip messages.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}
