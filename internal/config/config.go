// Package config loads server configuration from file, environment, and
// defaults through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alexmahrou/mcp-server/internal/observability"
	"github.com/alexmahrou/mcp-server/internal/qcapi"
	"github.com/alexmahrou/mcp-server/internal/supervise"
)

// Config is the full server configuration.
type Config struct {
	API     qcapi.Config                `mapstructure:"api"`
	Poll    supervise.Config            `mapstructure:"poll"`
	Server  ServerConfig                `mapstructure:"server"`
	Log     LogConfig                   `mapstructure:"log"`
	Context ContextConfig               `mapstructure:"context"`
	Metrics observability.MetricsConfig `mapstructure:"metrics"`
	Tracing observability.TracingConfig `mapstructure:"tracing"`
	// CatalogPath points at an optional YAML catalog extension file.
	CatalogPath string `mapstructure:"catalog_path"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ContextConfig tunes the session context store.
type ContextConfig struct {
	RecentCap int `mapstructure:"recent_cap"`
}

// Load reads configuration: defaults, then an optional qcmcp config file,
// then QC_MCP_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Credentials default to empty so environment-only configuration is
	// visible to Unmarshal.
	v.SetDefault("api.user_id", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.base_url", qcapi.DefaultBaseURL)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("poll.initial_interval", 1*time.Second)
	v.SetDefault("poll.max_interval", 30*time.Second)
	v.SetDefault("poll.multiplier", 2.0)
	v.SetDefault("poll.max_attempts", 30)
	v.SetDefault("poll.deadline", 10*time.Minute)
	v.SetDefault("server.addr", ":8979")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("context.recent_cap", 64)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("qcmcp")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/qcmcp")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QC_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// The file is optional; environment and defaults can carry a
		// full configuration.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required credentials are present.
func (c *Config) Validate() error {
	if c.API.UserID == "" {
		return fmt.Errorf("api.user_id is required (QC_MCP_API_USER_ID)")
	}
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required (QC_MCP_API_TOKEN)")
	}
	return nil
}
