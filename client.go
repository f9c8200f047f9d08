// Package taxamap provides the main entry point for the taxamap species
// information engine. A Client answers species queries from its local
// record store and, on a miss, runs a bounded research session against
// external sources, merges what it found and folds it back into the store
// so the next query for the same taxon is served without research.
//
// Client wraps the underlying packages with:
// - Single-flight resolution: concurrent misses for one query share one session and one write
// - Synonym-aware attachment of new research to existing entities
// - Event hooks for resolved profiles and finished research sessions
// - Flexible configuration through functional options
//
// Example usage:
//
//	table, err := authority.Load("configs/authorities.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := taxamap.New(
//	    taxamap.WithAuthorities(table),
//	    taxamap.WithStorePath("taxamap.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	profile, err := client.Resolve(ctx, "Ulva lactuca")
//	if errors.IsNotFound(err) {
//	    fmt.Println("no source knows this taxon")
//	}
//	fmt.Printf("%s: %.2f complete\n", profile.Entity.ScientificName, profile.Completeness)
package taxamap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/agentstation/taxamap/internal/sources/registry"
	"github.com/agentstation/taxamap/internal/store/sqlite"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/reconciler"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/store"
	"github.com/agentstation/taxamap/pkg/taxa"
)

// Client resolves species queries.
type Client interface {
	// Resolve returns the profile of the taxon query names. The query is a
	// canonical id, a "source:id" external id, or a name. A taxon no source
	// knows yields an error matching errors.ErrNotFound.
	Resolve(ctx context.Context, query string) (*taxa.Profile, error)

	// OnResolved registers a callback for every successful resolve
	OnResolved(ResolvedHook)

	// OnResearched registers a callback for every finished research session
	OnResearched(ResearchedHook)

	// Close releases the store if the client opened it
	Close() error
}

// client is the internal implementation of the Client interface
type client struct {
	store        store.Store
	ownsStore    bool
	merger       reconciler.Merger
	orchestrator *research.Orchestrator
	logger       *zerolog.Logger
	group        singleflight.Group

	// Event hooks
	hooks *hooks
}

// New creates a Client with the given options. A priority table
// (WithAuthorities) or a merger (WithMerger) is required.
func New(opts ...Option) (Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying options: %w", err)
		}
	}

	c := &client{
		store:  cfg.store,
		merger: cfg.merger,
		logger: cfg.logger,
		hooks:  newHooks(),
	}

	if c.merger == nil {
		if cfg.authorities == nil {
			return nil, errors.NewConfigError("taxamap", "a priority table is required (WithAuthorities)", nil)
		}
		m, err := reconciler.New(reconciler.WithAuthorities(cfg.authorities), reconciler.WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("creating merger: %w", err)
		}
		c.merger = m
	}

	invoker := cfg.invoker
	if invoker == nil {
		reg, err := registry.New(cfg.sources)
		if err != nil {
			return nil, fmt.Errorf("creating source registry: %w", err)
		}
		invoker = reg
	}

	reasoner := cfg.reasoner
	if reasoner == nil {
		reasoner = research.SequentialReasoner{}
	}
	orch, err := research.New(invoker, reasoner, append(cfg.research, research.WithLogger(cfg.logger))...)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	c.orchestrator = orch

	if c.store == nil {
		s, err := sqlite.Open(context.Background(), cfg.storePath, sqlite.WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		c.store = s
		c.ownsStore = true
	}
	return c, nil
}

// OnResolved registers a callback for every successful resolve
func (c *client) OnResolved(fn ResolvedHook) {
	c.hooks.OnResolved(fn)
}

// OnResearched registers a callback for every finished research session
func (c *client) OnResearched(fn ResearchedHook) {
	c.hooks.OnResearched(fn)
}

// Close releases the store if the client opened it
func (c *client) Close() error {
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}
