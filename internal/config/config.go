// Package config resolves process configuration for the agentflow binaries
// from flags, environment variables, and defaults, via spf13/viper. No
// config file is read.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration for agentflowd.
type Config struct {
	// Addr is the HTTP listen address for the API server.
	Addr string

	// StoreDSN is the sqlite DSN (file path, optionally with query params)
	// for the persistence layer.
	StoreDSN string

	// TickInterval is the Executor's polling cadence.
	TickInterval time.Duration

	// MaxConcurrency bounds the Executor's in-flight task count across all projects.
	MaxConcurrency int64

	// ResourceCheckInterval is how often the Resource Monitor refreshes availability.
	ResourceCheckInterval time.Duration

	// AnthropicAPIKey authenticates the Agent Runner's model calls.
	AnthropicAPIKey string

	// LogLevel controls the zap logger's minimum level ("debug", "info", "warn", "error").
	LogLevel string
}

func defaults() map[string]any {
	return map[string]any{
		"addr":                    ":8080",
		"store-dsn":               "agentflow.db",
		"tick-interval":           2 * time.Second,
		"max-concurrency":         10,
		"resource-check-interval": 30 * time.Second,
		"log-level":               "info",
	}
}

// BindFlags registers the process configuration flags on fs and binds them
// into v, so command-line values take precedence over env/defaults.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("addr", ":8080", "HTTP server address")
	fs.String("store-dsn", "agentflow.db", "sqlite DSN for the persistence layer")
	fs.Duration("tick-interval", 2*time.Second, "executor tick interval")
	fs.Int64("max-concurrency", 10, "maximum in-flight tasks across all projects")
	fs.Duration("resource-check-interval", 30*time.Second, "resource monitor refresh interval")
	fs.String("anthropic-api-key", "", "Anthropic API key (falls back to ANTHROPIC_API_KEY)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")

	return v.BindPFlags(fs)
}

// Load resolves a Config from v, which must already have flags bound via
// BindFlags. Precedence is flag > env > default, per viper's standard
// resolution order; an empty API key then falls back to ANTHROPIC_API_KEY.
func Load(v *viper.Viper) (*Config, error) {
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("agentflow")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Addr:                  v.GetString("addr"),
		StoreDSN:              v.GetString("store-dsn"),
		TickInterval:          v.GetDuration("tick-interval"),
		MaxConcurrency:        v.GetInt64("max-concurrency"),
		ResourceCheckInterval: v.GetDuration("resource-check-interval"),
		AnthropicAPIKey:       v.GetString("anthropic-api-key"),
		LogLevel:              v.GetString("log-level"),
	}

	if cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required: set --anthropic-api-key or ANTHROPIC_API_KEY")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max-concurrency must be > 0, got %d", cfg.MaxConcurrency)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick-interval must be > 0, got %s", cfg.TickInterval)
	}

	return cfg, nil
}
