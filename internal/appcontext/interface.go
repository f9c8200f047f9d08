// Package appcontext provides the shared application context interface
// used by all commands, so commands depend on what they use rather than
// on the concrete CLI application.
package appcontext

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap"
	"github.com/agentstation/taxamap/pkg/store"
)

// Interface defines the application context commands need.
// The App struct from cmd/taxamap/app implements it.
type Interface interface {
	// Client returns the shared taxamap client, creating it lazily.
	Client() (taxamap.Client, error)

	// Store returns the record store the client reads and writes.
	// Commands use it for read-only inspection.
	Store() (store.Store, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table, wide).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
