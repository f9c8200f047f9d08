// Package app provides the application context and dependency management
// for the taxamap CLI: configuration, logging, and the lazily created
// record store and client shared by all commands.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap"
	"github.com/agentstation/taxamap/internal/appcontext"
	"github.com/agentstation/taxamap/internal/reasoner/gemini"
	"github.com/agentstation/taxamap/internal/server"
	"github.com/agentstation/taxamap/internal/sources/registry"
	"github.com/agentstation/taxamap/internal/store/sqlite"
	"github.com/agentstation/taxamap/pkg/authority"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/store"
	"github.com/agentstation/taxamap/pkg/types"
)

// App represents the taxamap application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// lazily created, shared by all commands
	mu     sync.Mutex
	store  store.Store
	client taxamap.Client
}

// New creates a new App instance with the given version information.
// Configuration is loaded from the environment and the default config
// file; Execute reloads it when --config names another file.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.NewConfigError("app", "loading configuration", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string { return a.version }

// Commit returns the git commit hash.
func (a *App) Commit() string { return a.commit }

// Date returns the build date.
func (a *App) Date() string { return a.date }

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string { return a.builtBy }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// OutputFormat returns the --format value, empty for auto-detection.
func (a *App) OutputFormat() string { return a.config.Format }

// ServerConfig returns the HTTP server settings from the configuration.
func (a *App) ServerConfig() server.Config { return a.config.Server }

// Store returns the record store, opening it on first use.
func (a *App) Store() (store.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.storeLocked()
}

func (a *App) storeLocked() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := sqlite.Open(context.Background(), a.config.StorePath, sqlite.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// Client returns the taxamap client, creating it on first use.
// Only one client is ever created.
func (a *App) Client() (taxamap.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	s, err := a.storeLocked()
	if err != nil {
		return nil, err
	}
	opts, err := a.clientOptions()
	if err != nil {
		return nil, err
	}
	c, err := taxamap.New(append(opts, taxamap.WithStore(s))...)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	a.client = c
	return c, nil
}

// clientOptions builds client options from the configuration.
func (a *App) clientOptions() ([]taxamap.Option, error) {
	table, err := authority.Load(a.config.AuthoritiesPath)
	if err != nil {
		return nil, err
	}

	enabled := make([]types.SourceID, 0, len(a.config.Sources))
	for _, s := range a.config.Sources {
		enabled = append(enabled, types.SourceID(strings.ToLower(strings.TrimSpace(s))))
	}

	ropts := []research.Option{
		research.WithMaxTurns(a.config.MaxTurns),
		research.WithTimeout(a.config.ResearchTimeout),
	}
	for c, d := range a.config.CallTimeouts {
		ropts = append(ropts, research.WithCallTimeout(c, d))
	}

	opts := []taxamap.Option{
		taxamap.WithLogger(a.logger),
		taxamap.WithAuthorities(table),
		taxamap.WithSources(registry.Config{
			UserAgent:    a.config.UserAgent,
			PubMedAPIKey: a.config.PubMedAPIKey,
			Enabled:      enabled,
		}),
		taxamap.WithResearchOptions(ropts...),
	}

	switch a.config.Reasoner {
	case "", ReasonerSequential:
	case ReasonerGemini:
		var gopts []gemini.Option
		if a.config.GeminiModel != "" {
			gopts = append(gopts, gemini.WithModel(a.config.GeminiModel))
		}
		if a.config.GeminiTemp > 0 {
			gopts = append(gopts, gemini.WithTemperature(float32(a.config.GeminiTemp)))
		}
		r, err := gemini.New(context.Background(), a.config.GeminiAPIKey, gopts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, taxamap.WithReasoner(r))
	default:
		return nil, errors.NewValidationError("research.reasoner", a.config.Reasoner,
			fmt.Sprintf("must be %q or %q", ReasonerSequential, ReasonerGemini))
	}
	return opts, nil
}

// Shutdown closes the client and the record store.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if err := stderrors.Join(errs...); err != nil {
		a.logger.Error().Err(err).Msg("Shutdown failed")
		return err
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithStore sets the record store (useful for testing).
func WithStore(s store.Store) Option {
	return func(a *App) error {
		a.store = s
		return nil
	}
}

// WithClient sets the client (useful for testing).
func WithClient(c taxamap.Client) Option {
	return func(a *App) error {
		a.client = c
		return nil
	}
}

// Ensure App implements appcontext.Interface at compile time.
var _ appcontext.Interface = (*App)(nil)
