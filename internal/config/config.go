// Package config loads and validates the package manager configuration using
// Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the FAIR_ prefix (e.g.,
// FAIR_RESOLVER_PLC_DIRECTORY_URL overrides resolver.plc_directory_url).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Metadata    MetadataConfig    `mapstructure:"metadata"`
	Install     InstallConfig     `mapstructure:"install"`
	Updates     UpdatesConfig     `mapstructure:"updates"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// APIToken guards the mutating routes. Empty keeps them closed.
	APIToken string `mapstructure:"api_token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ResolverConfig controls DID resolution.
type ResolverConfig struct {
	PLCDirectoryURL  string        `mapstructure:"plc_directory_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	DocumentCacheTTL time.Duration `mapstructure:"document_cache_ttl"`
}

// MetadataConfig controls metadata document fetches.
type MetadataConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// InstallConfig controls package installation.
type InstallConfig struct {
	// VerifySignatures checks each downloaded archive against the package's
	// signing keys.
	VerifySignatures bool `mapstructure:"verify_signatures"`
	// RequireSigningKeys fails verification when no key decodes.
	RequireSigningKeys bool `mapstructure:"require_signing_keys"`
	// VerifyEmbeddedDID requires the package header ID to match the DID.
	VerifyEmbeddedDID bool          `mapstructure:"verify_embedded_did"`
	Locale            string        `mapstructure:"locale"`
	PluginsDir        string        `mapstructure:"plugins_dir"`
	ThemesDir         string        `mapstructure:"themes_dir"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`
	MaxArchiveSize    int64         `mapstructure:"max_archive_size"`
}

// UpdatesConfig controls the periodic update check.
type UpdatesConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	SuccessTTL  time.Duration `mapstructure:"success_ttl"`
	Parallelism int           `mapstructure:"parallelism"`
}

// EnvironmentConfig describes the host that packages are installed into.
type EnvironmentConfig struct {
	WPVersion  string   `mapstructure:"wp_version"`
	PHPVersion string   `mapstructure:"php_version"`
	Extensions []string `mapstructure:"extensions"`
}

// CacheConfig selects where update records are kept.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig selects the optional archive cache backend. An empty
// Backend disables the cache.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	S3      S3StorageConfig    `mapstructure:"s3"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`

	// AuthMethod is "default" (AWS credential chain) or "static".
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// DatabaseConfig holds the update history database configuration. The
// database is optional.
type DatabaseConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
	// HistoryRetention is how long update check history is kept.
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.api_token",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Resolver
		"resolver.plc_directory_url",
		"resolver.timeout",
		"resolver.document_cache_ttl",

		// Metadata
		"metadata.timeout",

		// Install
		"install.verify_signatures",
		"install.require_signing_keys",
		"install.verify_embedded_did",
		"install.locale",
		"install.plugins_dir",
		"install.themes_dir",
		"install.download_timeout",
		"install.max_archive_size",

		// Updates
		"updates.enabled",
		"updates.interval",
		"updates.success_ttl",
		"updates.parallelism",

		// Environment
		"environment.wp_version",
		"environment.php_version",
		"environment.extensions",

		// Cache
		"cache.backend",
		"cache.redis.address",
		"cache.redis.password",
		"cache.redis.db",
		"cache.redis.key_prefix",

		// Storage
		"storage.backend",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.prefix",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.local.base_path",

		// Database
		"database.enabled",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",
		"database.history_retention",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/fair")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("FAIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Cache.Redis.Password = expandEnv(cfg.Cache.Redis.Password)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", false)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Resolver defaults
	v.SetDefault("resolver.plc_directory_url", "https://plc.directory")
	v.SetDefault("resolver.timeout", "10s")
	v.SetDefault("resolver.document_cache_ttl", "5m")

	// Metadata defaults
	v.SetDefault("metadata.timeout", "7s")

	// Install defaults
	v.SetDefault("install.verify_signatures", false)
	v.SetDefault("install.require_signing_keys", true)
	v.SetDefault("install.verify_embedded_did", true)
	v.SetDefault("install.locale", "en_US")
	v.SetDefault("install.plugins_dir", "./wp-content/plugins")
	v.SetDefault("install.themes_dir", "./wp-content/themes")
	v.SetDefault("install.download_timeout", "5m")
	v.SetDefault("install.max_archive_size", 100*1024*1024)

	// Updates defaults
	v.SetDefault("updates.enabled", true)
	v.SetDefault("updates.interval", "12h")
	v.SetDefault("updates.success_ttl", "1h")
	v.SetDefault("updates.parallelism", 1)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "fair:")

	// Storage defaults
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.local.base_path", "./cache/archives")
	v.SetDefault("storage.s3.auth_method", "default")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "fair")
	v.SetDefault("database.user", "fair")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_idle_connections", 2)
	v.SetDefault("database.history_retention", "720h")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Resolver.PLCDirectoryURL == "" {
		return fmt.Errorf("resolver.plc_directory_url is required")
	}
	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver.timeout must be positive")
	}
	if c.Resolver.DocumentCacheTTL < 0 {
		return fmt.Errorf("resolver.document_cache_ttl cannot be negative")
	}
	if c.Metadata.Timeout <= 0 {
		return fmt.Errorf("metadata.timeout must be positive")
	}

	if c.Install.PluginsDir == "" {
		return fmt.Errorf("install.plugins_dir is required")
	}
	if c.Install.ThemesDir == "" {
		return fmt.Errorf("install.themes_dir is required")
	}
	if c.Install.DownloadTimeout <= 0 {
		return fmt.Errorf("install.download_timeout must be positive")
	}

	if c.Updates.Enabled && c.Updates.Interval < time.Minute {
		return fmt.Errorf("updates.interval must be at least 1m, got %s", c.Updates.Interval)
	}
	if c.Updates.SuccessTTL <= 0 {
		return fmt.Errorf("updates.success_ttl must be positive")
	}
	if c.Updates.Parallelism < 1 || c.Updates.Parallelism > 32 {
		return fmt.Errorf("updates.parallelism must be between 1 and 32, got %d", c.Updates.Parallelism)
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("cache.redis.address is required when using the redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}

	switch c.Storage.Backend {
	case "":
	case "local":
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be empty, local, or s3)", c.Storage.Backend)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
