package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sigauth.org/internal/directory"
)

// Config is the full runtime configuration of the directory service. Values
// come from sigauth.yaml when present, overridden by SIGAUTH_* environment
// variables (SIGAUTH_DATABASE_HOST, SIGAUTH_SESSION_TTL_HOURS, ...).
type Config struct {
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Session     SessionConfig   `mapstructure:"session"`
	Fetch       FetchConfig     `mapstructure:"fetch"`
	Bootstrap   BootstrapConfig `mapstructure:"bootstrap"`
	TokenSecret string          `mapstructure:"token_secret"`
}

type ServerConfig struct {
	Addr            string `mapstructure:"addr"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	RateLimitPerSec int    `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int    `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	DSN      string `mapstructure:"dsn"`
}

// ConnString returns the PostgreSQL connection string. An explicit dsn wins
// over the individual members.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type SessionConfig struct {
	TTLHours          int `mapstructure:"ttl_hours"`
	SweepIntervalMins int `mapstructure:"sweep_interval_mins"`
	APITokenTTLDays   int `mapstructure:"api_token_ttl_days"`
}

// TTL returns the session lifetime.
func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLHours) * time.Hour }

// SweepInterval returns how often expired sessions are purged.
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMins) * time.Minute
}

// APITokenTTL returns the account API token lifetime.
func (s SessionConfig) APITokenTTL() time.Duration {
	return time.Duration(s.APITokenTTLDays) * 24 * time.Hour
}

type FetchConfig struct {
	Attempts  int `mapstructure:"attempts"`
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// Timeout returns the per-attempt catalog fetch timeout.
func (f FetchConfig) Timeout() time.Duration { return time.Duration(f.TimeoutMs) * time.Millisecond }

// BootstrapConfig overrides the protected entity ids and names. The seed data
// applied by the migration tool must match.
type BootstrapConfig struct {
	AppID         int64  `mapstructure:"app_id"`
	AppName       string `mapstructure:"app_name"`
	ContainerID   int64  `mapstructure:"container_id"`
	ContainerName string `mapstructure:"container_name"`
	AssetTypeID   int64  `mapstructure:"asset_type_id"`
	AssetTypeName string `mapstructure:"asset_type_name"`
}

// Directory converts the section into the directory bootstrap value.
func (b BootstrapConfig) Directory() directory.Bootstrap {
	return directory.Bootstrap{
		AppID:         b.AppID,
		AppName:       b.AppName,
		ContainerID:   b.ContainerID,
		ContainerName: b.ContainerName,
		AssetTypeID:   b.AssetTypeID,
		AssetTypeName: b.AssetTypeName,
	}
}

// Load reads sigauth.yaml and the SIGAUTH_* environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("sigauth")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/sigauth")

	boot := directory.DefaultBootstrap()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.rate_limit_per_sec", 50)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sigauth")
	v.SetDefault("database.name", "sigauth")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("session.ttl_hours", 24)
	v.SetDefault("session.sweep_interval_mins", 60)
	v.SetDefault("session.api_token_ttl_days", 365)
	v.SetDefault("fetch.attempts", 3)
	v.SetDefault("fetch.timeout_ms", 2000)
	v.SetDefault("bootstrap.app_id", boot.AppID)
	v.SetDefault("bootstrap.app_name", boot.AppName)
	v.SetDefault("bootstrap.container_id", boot.ContainerID)
	v.SetDefault("bootstrap.container_name", boot.ContainerName)
	v.SetDefault("bootstrap.asset_type_id", boot.AssetTypeID)
	v.SetDefault("bootstrap.asset_type_name", boot.AssetTypeName)

	v.SetEnvPrefix("SIGAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; env and defaults carry the config.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("token_secret (SIGAUTH_TOKEN_SECRET) is required")
	}
	return &cfg, nil
}
