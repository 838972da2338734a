package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig controls the fixed-window request limiter.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GatewayConfig configures the encryption gateway.
type GatewayConfig struct {
	// MasterKey derives the gateway's sealing and proof keys. Hex, base64,
	// or raw bytes are accepted.
	MasterKey string `mapstructure:"master_key"`
	// Registry is the registry address ciphertext handles are bound to.
	Registry string `mapstructure:"registry"`
	// MaxAuthorizationTTL caps decrypt authorization validity windows.
	MaxAuthorizationTTL time.Duration `mapstructure:"max_authorization_ttl"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Challenge ChallengeSettings `mapstructure:"challenge"`
	Bootstrap BootstrapSettings `mapstructure:"bootstrap"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// ChallengeSettings configures the signed login challenge flow.
type ChallengeSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// BootstrapSettings seeds the initial global admin identity.
type BootstrapSettings struct {
	AdminName       string `mapstructure:"admin_name"`
	AdminSigningKey string `mapstructure:"admin_signing_key"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig controls the background cleanup scheduler.
type MaintenanceConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	AuditRetentionDays int           `mapstructure:"audit_retention_days"`
	UnboundHandleTTL   time.Duration `mapstructure:"unbound_handle_ttl"`
	AuditSchedule      string        `mapstructure:"audit_schedule"`
	HandleSchedule     string        `mapstructure:"handle_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CREDVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.max_requests", 100)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/credvault.sqlite")

	v.SetDefault("gateway.registry", "credvault-local")
	v.SetDefault("gateway.max_authorization_ttl", "1h")

	v.SetDefault("auth.jwt.issuer", "credvault")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.challenge.ttl", "5m")
	v.SetDefault("auth.bootstrap.admin_name", "Registry Admin")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.unbound_handle_ttl", "24h")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.handle_schedule", "@hourly")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate enforces settings the server cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		return errors.New("config: auth.jwt.secret is required")
	}
	if strings.TrimSpace(c.Gateway.MasterKey) == "" {
		return errors.New("config: gateway.master_key is required")
	}
	if strings.TrimSpace(c.Auth.Bootstrap.AdminSigningKey) == "" {
		return errors.New("config: auth.bootstrap.admin_signing_key is required")
	}
	return nil
}
