package taxamap

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap/internal/sources/registry"
	"github.com/agentstation/taxamap/internal/store/sqlite"
	"github.com/agentstation/taxamap/pkg/authority"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/reconciler"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/store"
)

// config holds the settings of a Client
type config struct {
	store       store.Store
	storePath   string
	authorities *authority.Table
	merger      reconciler.Merger
	invoker     research.Invoker
	sources     registry.Config
	reasoner    research.Reasoner
	research    []research.Option
	logger      *zerolog.Logger
}

func defaultConfig() *config {
	return &config{
		storePath: sqlite.MemoryPath,
		logger:    logging.Default(),
	}
}

// Option is a function that configures a Client
type Option func(*config) error

// WithStore uses an already opened store. The client does not close it.
func WithStore(s store.Store) Option {
	return func(c *config) error {
		if s == nil {
			return errors.NewValidationError("store", nil, "cannot be nil")
		}
		c.store = s
		return nil
	}
}

// WithStorePath opens a SQLite store at path. The default is an in-memory store.
func WithStorePath(path string) Option {
	return func(c *config) error {
		if path == "" {
			return errors.NewValidationError("store.path", path, "cannot be empty")
		}
		c.storePath = path
		return nil
	}
}

// WithAuthorities configures the source priority table used to merge captures
func WithAuthorities(table *authority.Table) Option {
	return func(c *config) error {
		if table == nil {
			return errors.NewValidationError("authorities", nil, "cannot be nil")
		}
		c.authorities = table
		return nil
	}
}

// WithMerger replaces the priority table merger
func WithMerger(m reconciler.Merger) Option {
	return func(c *config) error {
		c.merger = m
		return nil
	}
}

// WithSources configures the built-in source fetchers
func WithSources(cfg registry.Config) Option {
	return func(c *config) error {
		c.sources = cfg
		return nil
	}
}

// WithInvoker replaces the built-in source registry, e.g. with a
// sources.Registry of custom fetchers
func WithInvoker(inv research.Invoker) Option {
	return func(c *config) error {
		c.invoker = inv
		return nil
	}
}

// WithReasoner sets the research reasoner. The default is research.SequentialReasoner.
func WithReasoner(r research.Reasoner) Option {
	return func(c *config) error {
		c.reasoner = r
		return nil
	}
}

// WithResearchOptions configures research session budgets and retry policy
func WithResearchOptions(opts ...research.Option) Option {
	return func(c *config) error {
		c.research = append(c.research, opts...)
		return nil
	}
}

// WithLogger sets the logger shared by the client's components
func WithLogger(l *zerolog.Logger) Option {
	return func(c *config) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}
