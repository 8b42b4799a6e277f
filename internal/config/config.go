// Package config loads server configuration from an optional config file,
// HANDOFF_* environment variables, and built-in defaults, in that order of
// increasing precedence for env over file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tool server configuration.
type Config struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	JSONLEnabled    bool          `mapstructure:"jsonl_enabled"`
	JSONLPath       string        `mapstructure:"jsonl_path"`
	ColorOutput     bool          `mapstructure:"color_output"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("sweep_interval", time.Second)
	v.SetDefault("jsonl_enabled", true)
	v.SetDefault("jsonl_path", "") // empty means stdout
	v.SetDefault("color_output", true)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetEnvPrefix("HANDOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	return &cfg, nil
}
