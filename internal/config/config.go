// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
// Every field is read from the environment; nested structs prefix their keys,
// e.g. Server.Port is SERVER_PORT and Database.MaxOpenConns is DB_MAX_OPEN_CONNS.
// Leaf fields use split_words rather than explicit tags so envconfig never
// falls back to generic variables such as USER or PORT.
type Config struct {
	App      AppConfig       `envconfig:"APP"`
	Server   ServerConfig    `envconfig:"SERVER"`
	Database DatabaseConfig  `envconfig:"DB"`
	Redis    RedisConfig     `envconfig:"REDIS"`
	Rate     RateLimitConfig `envconfig:"RATE_LIMIT"`
	Auth     AuthConfig      `envconfig:"AUTH"`
	Origin   OriginConfig    `envconfig:"ORIGIN"`
	Proxy    ProxyConfig     `envconfig:"PROXY"`
	Usage    UsageConfig     `envconfig:"USAGE"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Env string `split_words:"true" default:"development"`
	// LogLevel is read from APP_LOG_LEVEL, falling back to LOG_LEVEL.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// IsDevelopment returns true if the app is running in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev"
}

// IsProduction returns true if the app is running in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host            string        `split_words:"true" default:"0.0.0.0"`
	Port            int           `split_words:"true" default:"8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"5s"`
	WriteTimeout    time.Duration `split_words:"true" default:"10s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
}

// Address returns the server address in host:port format.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host            string        `split_words:"true" default:"localhost"`
	Port            int           `split_words:"true" default:"5432"`
	User            string        `split_words:"true" default:"clusterdeck"`
	Password        string        `split_words:"true"`
	Name            string        `split_words:"true" default:"clusterdeck"`
	SSLMode         string        `split_words:"true" default:"disable"`
	MaxOpenConns    int           `split_words:"true" default:"25"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"5m"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string        `split_words:"true"`
	Port     int           `split_words:"true" default:"6379"`
	Password string        `split_words:"true"`
	DB       int           `split_words:"true" default:"0"`
	PoolSize int           `split_words:"true" default:"10"`
	TokenTTL time.Duration `split_words:"true" default:"5m"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled        bool          `split_words:"true" default:"true"`
	Requests       int           `split_words:"true" default:"100"`
	Window         time.Duration `split_words:"true" default:"1m"`
	TrustProxy     bool          `split_words:"true" default:"false"`
	TrustedProxies []string      `split_words:"true"`
}

// AuthConfig holds token authentication configuration.
type AuthConfig struct {
	// BootstrapToken is a full "name:key" token upserted at startup.
	BootstrapToken  string        `split_words:"true"`
	BootstrapUser   string        `split_words:"true" default:"admin"`
	CookieName      string        `split_words:"true" default:"R_SESS"`
	DefaultTokenTTL time.Duration `split_words:"true" default:"0s"`
}

// OriginConfig lists origins allowed to open WebSocket connections in
// addition to the server's own host.
type OriginConfig struct {
	Allowed []string `split_words:"true"`
}

// ProxyConfig holds meta proxy configuration.
type ProxyConfig struct {
	Enabled      bool     `split_words:"true" default:"true"`
	AllowedHosts []string `split_words:"true"`
	AllowPrivate bool     `split_words:"true" default:"false"`
}

// UsageConfig tunes batched token usage tracking.
type UsageConfig struct {
	FlushInterval time.Duration `split_words:"true" default:"10s"`
	BatchSize     int           `split_words:"true" default:"100"`
	ChannelBuffer int           `split_words:"true" default:"10000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express as types.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}
	if c.Rate.Enabled && (c.Rate.Requests <= 0 || c.Rate.Window <= 0) {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.Usage.FlushInterval <= 0 {
		return errors.New("USAGE_FLUSH_INTERVAL must be positive")
	}
	return nil
}

// DatabaseEnabled returns true if database configuration is provided.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != "" && c.Database.Password != ""
}

// RedisEnabled returns true if Redis configuration is provided.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}
