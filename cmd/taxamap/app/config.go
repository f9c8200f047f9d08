package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/taxamap/internal/server"
	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/types"
)

// EnvPrefix prefixes every environment variable read by the CLI,
// e.g. TAXAMAP_STORE_PATH for store.path.
const EnvPrefix = "TAXAMAP"

// Reasoner names accepted by research.reasoner.
const (
	ReasonerSequential = "sequential"
	ReasonerGemini     = "gemini"
)

// Config holds the application configuration loaded from config files,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string

	// Record store and merging
	StorePath       string
	AuthoritiesPath string

	// Research
	MaxTurns        int
	ResearchTimeout time.Duration
	CallTimeouts    map[types.Capability]time.Duration
	Reasoner        string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiTemp      float64 // sampling temperature, 0 keeps the model default

	// Sources
	UserAgent    string
	PubMedAPIKey string
	Sources      []string

	// HTTP server
	Server server.Config
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (applied later by cobra)
//  2. Environment variables (TAXAMAP_*, plus GOOGLE_API_KEY and NCBI_API_KEY)
//  3. .env and .env.local files
//  4. Config file (configFile, or ~/.taxamap.yaml or ./.taxamap.yaml)
//  5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindAPIKeys(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".taxamap")
		// a missing default config file is fine
		_ = v.ReadInConfig()
	}

	srv := server.DefaultConfig()
	srv.Host = v.GetString("server.host")
	srv.Port = v.GetInt("server.port")
	srv.PathPrefix = v.GetString("server.prefix")
	srv.CORSEnabled = v.GetBool("server.cors")
	srv.CORSOrigins = v.GetStringSlice("server.cors_origins")
	srv.AuthEnabled = v.GetBool("server.auth")
	srv.AuthHeader = v.GetString("server.auth_header")
	srv.APIKey = v.GetString("server.api_key")
	srv.RateLimit = v.GetInt("server.rate_limit")
	srv.CacheTTL = v.GetDuration("server.cache_ttl")
	srv.ResolveTimeout = v.GetDuration("server.resolve_timeout")
	srv.ReadTimeout = v.GetDuration("server.read_timeout")
	srv.WriteTimeout = v.GetDuration("server.write_timeout")
	srv.IdleTimeout = v.GetDuration("server.idle_timeout")
	srv.MetricsEnabled = v.GetBool("server.metrics")

	callTimeouts, err := parseCallTimeouts(v.GetStringMapString("research.call_timeouts"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
		LogOutput: v.GetString("log.output"),

		StorePath:       expandHome(v.GetString("store.path")),
		AuthoritiesPath: expandHome(v.GetString("authorities")),

		MaxTurns:        v.GetInt("research.max_turns"),
		ResearchTimeout: v.GetDuration("research.timeout"),
		CallTimeouts:    callTimeouts,
		Reasoner:        strings.ToLower(v.GetString("research.reasoner")),
		GeminiAPIKey:    v.GetString("gemini.api_key"),
		GeminiModel:     v.GetString("gemini.model"),
		GeminiTemp:      v.GetFloat64("gemini.temperature"),

		UserAgent:    v.GetString("sources.user_agent"),
		PubMedAPIKey: v.GetString("sources.pubmed_api_key"),
		Sources:      v.GetStringSlice("sources.enabled"),

		Server: srv,
	}, nil
}

// parseCallTimeouts reads research.call_timeouts, a map of capability name
// to duration such as {get_literature: 30s}.
func parseCallTimeouts(raw map[string]string) (map[types.Capability]time.Duration, error) {
	out := make(map[types.Capability]time.Duration, len(raw))
	for name, value := range raw {
		c := types.Capability(strings.ToLower(name))
		if !c.IsValid() {
			return nil, errors.NewValidationError("research.call_timeouts", name, "unknown capability")
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, errors.NewValidationError("research.call_timeouts."+name, value, "not a positive duration")
		}
		out[c] = d
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("store.path", filepath.Join("~", ".taxamap", "taxamap.db"))
	v.SetDefault("authorities", filepath.Join("configs", "authorities.yaml"))

	v.SetDefault("research.max_turns", constants.DefaultMaxTurns)
	v.SetDefault("research.timeout", constants.DefaultSessionTimeout)
	v.SetDefault("research.reasoner", ReasonerSequential)

	v.SetDefault("sources.user_agent", "taxamap (+https://github.com/agentstation/taxamap)")

	d := server.DefaultConfig()
	v.SetDefault("server.host", d.Host)
	v.SetDefault("server.port", d.Port)
	v.SetDefault("server.prefix", d.PathPrefix)
	v.SetDefault("server.auth_header", d.AuthHeader)
	v.SetDefault("server.rate_limit", d.RateLimit)
	v.SetDefault("server.cache_ttl", d.CacheTTL)
	v.SetDefault("server.resolve_timeout", d.ResolveTimeout)
	v.SetDefault("server.read_timeout", d.ReadTimeout)
	v.SetDefault("server.write_timeout", d.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.IdleTimeout)
	v.SetDefault("server.metrics", d.MetricsEnabled)
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags so flag values take
// precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env; neither overrides the real environment.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// bindAPIKeys binds the provider-wide API key variables that do not carry
// the TAXAMAP_ prefix. The prefixed variable wins.
func bindAPIKeys(v *viper.Viper) error {
	bindings := map[string][]string{
		"gemini.api_key":         {EnvPrefix + "_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"sources.pubmed_api_key": {EnvPrefix + "_SOURCES_PUBMED_API_KEY", "NCBI_API_KEY"},
		"server.api_key":         {EnvPrefix + "_SERVER_API_KEY", "API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && !strings.HasPrefix(rest, string(filepath.Separator))) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
