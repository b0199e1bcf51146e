// Package config provides YAML-based configuration loading for Parley.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Parley configuration, loaded from parley.yaml.
// Environment variables (PARLEY_*) override file values so secrets can stay
// out of the config file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Auth   AuthConfig   `yaml:"auth"`
	Chat   ChatConfig   `yaml:"chat"`
	Agent  AgentConfig  `yaml:"agent"`
}

// ServerConfig holds the HTTP/websocket listen settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"PARLEY_HOST"`
	Port int    `yaml:"port" env:"PARLEY_PORT"`
}

// DBConfig selects and configures the storage backend. sqlite is the
// single-box default; mysql serves shared deployments.
type DBConfig struct {
	Driver   string `yaml:"driver" env:"PARLEY_DB_DRIVER"`
	Path     string `yaml:"path" env:"PARLEY_DB_PATH"` // sqlite only
	Host     string `yaml:"host" env:"PARLEY_DB_HOST"`
	Port     int    `yaml:"port" env:"PARLEY_DB_PORT"`
	Database string `yaml:"database" env:"PARLEY_DB_NAME"`
	User     string `yaml:"user" env:"PARLEY_DB_USER"`
	Password string `yaml:"password" env:"PARLEY_DB_PASSWORD"`
}

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" env:"PARLEY_JWT_SECRET"`
	TokenTTLHours int    `yaml:"token_ttl_hours" env:"PARLEY_TOKEN_TTL_HOURS"`
}

// ChatConfig holds messaging-channel tuning.
type ChatConfig struct {
	// ReconnectIntervalSeconds is the fixed delay between reconnection
	// attempts after an unexpected transport loss.
	ReconnectIntervalSeconds int `yaml:"reconnect_interval_seconds" env:"PARLEY_RECONNECT_INTERVAL_SECONDS"`
	// RetentionDays prunes messages older than this many days on a nightly
	// sweep. 0 keeps everything.
	RetentionDays int `yaml:"retention_days" env:"PARLEY_RETENTION_DAYS"`
}

// AgentConfig describes the well-known support agent account seeded by
// `parley db init`.
type AgentConfig struct {
	Username    string `yaml:"username" env:"PARLEY_AGENT_USERNAME"`
	DisplayName string `yaml:"display_name" env:"PARLEY_AGENT_DISPLAY_NAME"`
	Password    string `yaml:"password" env:"PARLEY_AGENT_PASSWORD"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides and defaults,
// and returns a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8084
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "parley.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 168
	}
	if c.Chat.ReconnectIntervalSeconds == 0 {
		c.Chat.ReconnectIntervalSeconds = 5
	}
	if c.Agent.Username == "" {
		c.Agent.Username = "support"
	}
	if c.Agent.DisplayName == "" {
		c.Agent.DisplayName = "Support"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (or PARLEY_JWT_SECRET)")
	}
	switch c.DB.Driver {
	case "sqlite":
	case "mysql":
		if c.DB.Database == "" {
			errs = append(errs, "db.database is required for mysql")
		}
		if c.DB.User == "" {
			errs = append(errs, "db.user is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("db.driver must be sqlite or mysql, got %q", c.DB.Driver))
	}
	if c.Chat.ReconnectIntervalSeconds < 0 {
		errs = append(errs, "chat.reconnect_interval_seconds must not be negative")
	}
	if c.Chat.RetentionDays < 0 {
		errs = append(errs, "chat.retention_days must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Addr returns the listen address for the server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TokenTTL returns the bearer token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// ReconnectInterval returns the fixed reconnect delay as a duration.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Chat.ReconnectIntervalSeconds) * time.Second
}

// Retention returns the message retention window, or 0 if pruning is off.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Chat.RetentionDays) * 24 * time.Hour
}
