// Package config loads collabtext server and agent settings from
// collabtext.yaml, COLLABTEXT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config holds settings for both binaries. Each binary reads the sections
// it needs.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the relay server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// RedisConfig configures the relay's pub/sub connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig configures the relay's update log. An empty URL runs the
// relay without persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// AgentConfig configures the local agent.
type AgentConfig struct {
	Addr           string        `mapstructure:"addr"`
	DocID          string        `mapstructure:"doc_id"`
	PeerID         string        `mapstructure:"peer_id"`
	RelayURL       string        `mapstructure:"relay_url"`
	LogPath        string        `mapstructure:"log_path"`
	UIDir          string        `mapstructure:"ui_dir"`
	Discovery      bool          `mapstructure:"discovery"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// New returns a viper instance with defaults and environment bindings set.
// Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", ":8081")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.url", "")
	v.SetDefault("agent.addr", ":8080")
	v.SetDefault("agent.doc_id", "test-doc")
	v.SetDefault("agent.peer_id", "")
	v.SetDefault("agent.relay_url", "ws://localhost:8081")
	v.SetDefault("agent.log_path", "collabtext-agent.db")
	v.SetDefault("agent.ui_dir", "../ui")
	v.SetDefault("agent.discovery", true)
	v.SetDefault("agent.capture_timeout", 500*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetConfigName("collabtext")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("collabtext")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("redis.addr", "COLLABTEXT_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("database.url", "COLLABTEXT_DATABASE_URL", "DATABASE_URL")

	return v
}

// Load reads the config file if there is one, then decodes and validates
// the settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr must not be empty")
	}
	if c.Agent.DocID == "" {
		return errors.New("agent.doc_id must not be empty")
	}
	if u := c.Agent.RelayURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return fmt.Errorf("agent.relay_url must be a ws:// or wss:// URL, got: %s", u)
	}
	if c.Agent.CaptureTimeout < 0 {
		return fmt.Errorf("agent.capture_timeout must not be negative, got: %s", c.Agent.CaptureTimeout)
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

// DocURL returns the relay websocket URL for the agent's document, or "" if
// the agent runs offline.
func (c AgentConfig) DocURL() string {
	if c.RelayURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.RelayURL, "/") + "/ws/" + c.DocID
}
