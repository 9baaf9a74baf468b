// Package config assembles the runtime configuration from flags, the
// environment and .env files.
package config

import (
	"fmt"
	"strings"
	"time"

	"docprov/internal/docdb"
	"docprov/internal/logging"
	"docprov/internal/resource"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. DOCPROV_ENDPOINT
const EnvPrefix = "docprov"

// Flag and key names shared by cobra and viper
const (
	KeyBackend            = "backend"
	KeyEndpoint           = "endpoint"
	KeyKey                = "key"
	KeyTimeout            = "timeout"
	KeyPageSize           = "page-size"
	KeyRetryMaxAttempts   = "retry-max-attempts"
	KeyRetryMaxElapsed    = "retry-max-elapsed"
	KeyRetryDefaultDelay  = "retry-default-delay"
	KeyRetryUnbounded     = "retry-unbounded"
	KeyConflictAsExisting = "conflict-as-existing"
	KeyLogLevel           = "log-level"
	KeyMetricsAddr        = "metrics-addr"
)

// Config is the complete runtime configuration. It is built once and passed
// to constructors explicitly.
type Config struct {
	Backend            docdb.Backend
	Endpoint           string
	Key                string
	Timeout            time.Duration
	PageSize           int
	Retry              resource.RetryPolicy
	ConflictAsExisting bool
	LogLevel           logging.LogLevel
	MetricsAddr        string
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Backend:     docdb.BackendHTTP,
		Endpoint:    "http://localhost:8081",
		Timeout:     30 * time.Second,
		PageSize:    docdb.DefaultPageSize,
		Retry:       resource.DefaultRetryPolicy(),
		LogLevel:    logging.LevelInfo,
		MetricsAddr: "",
	}
}

// LoadEnvFiles loads .env and then .env.local from the working directory.
// Missing files are ignored and already set variables win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// NewViper returns a viper instance reading DOCPROV_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault(KeyBackend, string(def.Backend))
	v.SetDefault(KeyEndpoint, def.Endpoint)
	v.SetDefault(KeyKey, def.Key)
	v.SetDefault(KeyTimeout, def.Timeout)
	v.SetDefault(KeyPageSize, def.PageSize)
	v.SetDefault(KeyRetryMaxAttempts, def.Retry.MaxAttempts)
	v.SetDefault(KeyRetryMaxElapsed, def.Retry.MaxElapsed)
	v.SetDefault(KeyRetryDefaultDelay, def.Retry.DefaultDelay)
	v.SetDefault(KeyRetryUnbounded, def.Retry.Unbounded)
	v.SetDefault(KeyConflictAsExisting, def.ConflictAsExisting)
	v.SetDefault(KeyLogLevel, def.LogLevel.String())
	v.SetDefault(KeyMetricsAddr, def.MetricsAddr)
	return v
}

// SetupFlags registers the connection and retry flags on cmd and binds them to v
func SetupFlags(cmd *cobra.Command, v *viper.Viper) error {
	def := Default()
	flags := cmd.PersistentFlags()

	flags.String(KeyBackend, string(def.Backend), "Document service backend: http or memory")
	flags.String(KeyEndpoint, def.Endpoint, "Endpoint of the document service")
	flags.String(KeyKey, def.Key, "Master key sent with every request")
	flags.Duration(KeyTimeout, def.Timeout, "Timeout of a single request")
	flags.Int(KeyPageSize, def.PageSize, "Page size used when listing databases and collections")
	flags.Int(KeyRetryMaxAttempts, def.Retry.MaxAttempts, "Attempts before a conflicting mutation gives up")
	flags.Duration(KeyRetryMaxElapsed, def.Retry.MaxElapsed, "Total time a conflicting mutation may keep retrying (0 disables the limit)")
	flags.Duration(KeyRetryDefaultDelay, def.Retry.DefaultDelay, "Wait after a conflict that carries no retry hint")
	flags.Bool(KeyRetryUnbounded, def.Retry.Unbounded, "Retry conflicting mutations without an attempt limit")
	flags.Bool(KeyConflictAsExisting, def.ConflictAsExisting, "Treat a create conflict as the resource already existing")
	flags.String(KeyLogLevel, def.LogLevel.String(), "Log level: debug, info, warn or error")
	flags.String(KeyMetricsAddr, def.MetricsAddr, "Address of a prometheus /metrics endpoint served while the command runs")

	return v.BindPFlags(flags)
}

// Load builds a Config from v
func Load(v *viper.Viper) (Config, error) {
	level, err := logging.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Backend:  docdb.Backend(strings.ToLower(v.GetString(KeyBackend))),
		Endpoint: v.GetString(KeyEndpoint),
		Key:      v.GetString(KeyKey),
		Timeout:  v.GetDuration(KeyTimeout),
		PageSize: v.GetInt(KeyPageSize),
		Retry: resource.RetryPolicy{
			MaxAttempts:  v.GetInt(KeyRetryMaxAttempts),
			MaxElapsed:   v.GetDuration(KeyRetryMaxElapsed),
			DefaultDelay: v.GetDuration(KeyRetryDefaultDelay),
			Unbounded:    v.GetBool(KeyRetryUnbounded),
		},
		ConflictAsExisting: v.GetBool(KeyConflictAsExisting),
		LogLevel:           level,
		MetricsAddr:        v.GetString(KeyMetricsAddr),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent values
func (c Config) Validate() error {
	switch c.Backend {
	case docdb.BackendMemory:
	case docdb.BackendHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("%s is required for the http backend", KeyEndpoint)
		}
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("%s cannot be negative", KeyTimeout)
	}
	if c.PageSize < 0 {
		return fmt.Errorf("%s cannot be negative", KeyPageSize)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry settings: %w", err)
	}
	return nil
}

// HTTPConfig returns the settings of the HTTP client
func (c Config) HTTPConfig() docdb.HTTPConfig {
	return docdb.HTTPConfig{
		Endpoint: c.Endpoint,
		Key:      c.Key,
		Timeout:  c.Timeout,
	}
}

// NewClient creates the document service client for the configured backend
func (c Config) NewClient() (docdb.Client, error) {
	return docdb.NewClient(c.Backend, c.HTTPConfig())
}

// NewController creates a reconciliation controller for client using the
// configured retry policy and conflict handling
func (c Config) NewController(client docdb.Client, opts ...resource.MutatorOption) (*resource.DefaultReconciliationController, error) {
	mutator, err := resource.NewRetryingMutator(c.Retry, opts...)
	if err != nil {
		return nil, err
	}

	return resource.NewReconciliationController(client, resource.ControllerOptions{
		PageSize:           c.PageSize,
		ConflictAsExisting: c.ConflictAsExisting,
		Mutator:            mutator,
	})
}
