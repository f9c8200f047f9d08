// Package logging provides structured logging for taxamap using zerolog.
// Terminals get human-readable console output; everything else gets JSON
// lines suitable for collection.
//
// Example usage:
//
//	log := logging.Default()
//	log.Info().Str("query", "ulva lactuca").Msg("Resolving")
//
//	ctx = logging.WithQuery(ctx, key)
//	logging.FromContext(ctx).Debug().Msg("Session started")
package logging

import (
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var defaultLogger atomic.Pointer[zerolog.Logger]

func init() {
	l := NewLoggerFromConfig(ConfigFromEnv())
	defaultLogger.Store(&l)
}

// Default returns the process-wide logger used when a context carries none.
func Default() *zerolog.Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger, including zerolog's global
// log.Logger so third-party code using it agrees.
func SetDefault(logger zerolog.Logger) {
	defaultLogger.Store(&logger)
	log.Logger = logger
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
