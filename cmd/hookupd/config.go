// Package main implements hookupd, a small example client program: it
// connects to a WebSocket endpoint, relays stdin lines as text sends, and
// logs every inbound event. It carries no library semantics of its own —
// it exists so the library has a runnable demonstration of itself, the
// same role cmd/agent plays for the teacher's internal packages.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigPath is where hookupd looks for its config file absent -config.
const DefaultConfigPath = "hookupd.yaml"

// DefaultDataDir is where hookupd persists its connection identity file.
const DefaultDataDir = "."

// Config holds hookupd's own configuration, loaded from YAML and environment
// overrides via viper, the same pattern as the teacher's internal/config.
type Config struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	DataDir        string        `mapstructure:"data_dir" yaml:"data_dir"`
	PingInterval   time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	MetricsAddr    string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// LoadConfig reads configuration from configPath, falling back to
// DefaultConfigPath if empty. Environment variables prefixed HOOKUP_
// override file values, exactly as the teacher's config.Load does for
// CRAZYSTREAM_.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("ping_interval", 30*time.Second)
	v.SetDefault("connect_timeout", 5*time.Second)
	v.SetDefault("reconnect_delay", time.Second)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	v.SetEnvPrefix("HOOKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	envBindings := map[string]string{
		"url":             "HOOKUP_URL",
		"log_level":       "HOOKUP_LOG_LEVEL",
		"data_dir":        "HOOKUP_DATA_DIR",
		"ping_interval":   "HOOKUP_PING_INTERVAL",
		"connect_timeout": "HOOKUP_CONNECT_TIMEOUT",
		"reconnect_delay": "HOOKUP_RECONNECT_DELAY",
		"metrics_addr":    "HOOKUP_METRICS_ADDR",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validation is the caller's job, not LoadConfig's: main applies the
	// -url flag override (which may be the only source of a URL) after
	// LoadConfig returns, before calling Validate itself.
	return &cfg, nil
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}
