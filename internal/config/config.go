// Package config loads server configuration from defaults, an optional YAML
// file and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can write values like "30s";
// yaml.v3 has no native decoding for time.Duration.
type Duration time.Duration

// UnmarshalYAML parses values accepted by time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Config holds every runtime setting for the server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Publish  PublishConfig  `yaml:"publish"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig configures PostgreSQL. An empty DSN selects the in-memory
// store, which is only suitable for local development and tests.
type DatabaseConfig struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the shared rate-limit backend. An empty Addr falls
// back to a per-process limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig configures session tokens and registration throttling.
type AuthConfig struct {
	TokenSecret        string   `yaml:"token_secret"`
	SessionTTL         Duration `yaml:"session_ttl"`
	RegistrationLimit  int      `yaml:"registration_limit"`
	RegistrationWindow Duration `yaml:"registration_window"`
}

// PublishConfig configures the scheduled-publish reconciler.
type PublishConfig struct {
	// TriggerSecret authorizes POST /publish-scheduled. It has no default
	// and no fallback; the server refuses to start without it.
	TriggerSecret string   `yaml:"trigger_secret"`
	Schedule      string   `yaml:"schedule"`
	BatchCap      int      `yaml:"batch_cap"`
	PassTimeout   Duration `yaml:"pass_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Auth: AuthConfig{
			SessionTTL:         Duration(24 * time.Hour),
			RegistrationLimit:  5,
			RegistrationWindow: Duration(time.Hour),
		},
		Publish: PublishConfig{
			Schedule:    "* * * * *",
			BatchCap:    500,
			PassTimeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. When INKPRESS_CONFIG names a YAML file it is
// applied on top of the defaults, then environment variables override both.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("INKPRESS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "INKPRESS_ADDR")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Auth.TokenSecret, "AUTH_TOKEN_SECRET")
	setDuration(&cfg.Auth.SessionTTL, "AUTH_SESSION_TTL")
	setInt(&cfg.Auth.RegistrationLimit, "REGISTRATION_LIMIT")
	setDuration(&cfg.Auth.RegistrationWindow, "REGISTRATION_WINDOW")
	setString(&cfg.Publish.TriggerSecret, "PUBLISH_TRIGGER_SECRET")
	setString(&cfg.Publish.Schedule, "PUBLISH_SCHEDULE")
	setInt(&cfg.Publish.BatchCap, "PUBLISH_BATCH_CAP")
	setDuration(&cfg.Publish.PassTimeout, "PUBLISH_PASS_TIMEOUT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
}

// Validate rejects configurations that must not reach production. Both
// secrets are required; there is deliberately no built-in fallback value.
func (c Config) Validate() error {
	if c.Publish.TriggerSecret == "" {
		return fmt.Errorf("publish trigger secret is required (PUBLISH_TRIGGER_SECRET)")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth token secret is required (AUTH_TOKEN_SECRET)")
	}
	if c.Publish.BatchCap <= 0 {
		return fmt.Errorf("publish batch cap must be positive")
	}
	if c.Auth.RegistrationLimit <= 0 {
		return fmt.Errorf("registration limit must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
