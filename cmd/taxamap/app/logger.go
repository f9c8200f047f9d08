package app

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap/pkg/logging"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// NewLogger creates a configured logger based on the application configuration.
// Log level precedence (highest to lowest):
//  1. --log-level flag or log.level (TAXAMAP_LOG_LEVEL)
//  2. -v/--verbose flag (shortcut for debug)
//  3. -q/--quiet flag (shortcut for warn)
//  4. Default (info)
func NewLogger(config *Config) zerolog.Logger {
	level, warning := determineLogLevel(config)
	if warning != "" {
		fmt.Fprintln(os.Stderr, "Warning: "+warning)
	}

	return logging.NewLoggerFromConfig(&logging.Config{
		Level:     level,
		Format:    config.LogFormat,
		Output:    config.LogOutput,
		NoColor:   config.NoColor || os.Getenv("NO_COLOR") != "",
		AddCaller: level == "debug" || level == "trace",
	})
}

// determineLogLevel applies the precedence rules and returns the level
// and, when the inputs were contradictory or invalid, a warning.
func determineLogLevel(config *Config) (level, warning string) {
	if config.LogLevel != "" {
		validated := validateLogLevel(strings.ToLower(config.LogLevel))
		if validated != strings.ToLower(config.LogLevel) {
			return validated, fmt.Sprintf("invalid log level %q, using %q", config.LogLevel, validated)
		}
		return validated, ""
	}

	switch {
	case config.Verbose && config.Quiet:
		return "warn", "both --verbose and --quiet specified, using --quiet"
	case config.Verbose:
		return "debug", ""
	case config.Quiet:
		return "warn", ""
	}
	return "info", ""
}

// validateLogLevel returns level when it is known and "info" otherwise.
func validateLogLevel(level string) string {
	if slices.Contains(validLogLevels, level) {
		return level
	}
	return "info"
}
