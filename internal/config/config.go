// Package config loads the configuration shared by the list backend and the
// list client.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultStorageBackend  = StorageMemory
	DefaultSQLitePath      = "shoplist.db"
	DefaultAuthMode        = "none"
	DefaultRemoteURL       = "http://localhost:8080"
	DefaultCacheTTL        = 24 * time.Hour
	DefaultPartialFailure  = PartialFailureLeave
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Partial failure policies of the recipe bridge.
const (
	PartialFailureLeave      = "leave"
	PartialFailureCompensate = "compensate"
)

// EnvPrefix prefixes every environment variable, e.g. APP_SERVER_PORT.
const EnvPrefix = "APP"

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int           `mapstructure:"server_port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`

	// Backend storage: memory or sqlite.
	StorageBackend string `mapstructure:"storage_backend"`
	SQLitePath     string `mapstructure:"sqlite_path"`

	// Authentication mode: none, basic, apikey, multi.
	AuthMode string `mapstructure:"auth_mode"`
	// Format: "user1:bcrypt_hash,user2:bcrypt_hash".
	BasicAuthUsers string `mapstructure:"basic_auth_users"`
	// Format: "key1:name1,key2:name2".
	APIKeys string `mapstructure:"api_keys"`

	// Client settings.
	RemoteURL       string        `mapstructure:"remote_url"`
	RemoteAPIKey    string        `mapstructure:"remote_api_key"`
	CachePath       string        `mapstructure:"cache_path"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	PartialFailure  string        `mapstructure:"partial_failure"`
	ReorderRollback bool          `mapstructure:"reorder_rollback"`
	RecipesPath     string        `mapstructure:"recipes_path"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStorageBackend  = errors.New("storage backend must be one of: memory, sqlite")
	ErrMissingSQLitePath      = errors.New("sqlite path must be set when storage backend is sqlite")
	ErrInvalidAuthMode        = errors.New("auth mode must be one of: none, basic, apikey, multi")
	ErrInvalidBasicAuthConfig = errors.New("basic auth users must be set when auth mode is basic")
	ErrInvalidAPIKeyConfig    = errors.New("API keys must be set when auth mode is apikey")
	ErrInvalidMultiAuthConfig = errors.New("at least one auth config must be provided when auth mode is multi")
	ErrInvalidCacheTTL        = errors.New("cache TTL must not be negative")
	ErrInvalidPartialFailure  = errors.New("partial failure policy must be one of: leave, compensate")
	ErrMissingRemoteURL       = errors.New("remote URL must be set")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", DefaultServerPort)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("metrics_enabled", DefaultMetricsEnabled)
	v.SetDefault("storage_backend", DefaultStorageBackend)
	v.SetDefault("sqlite_path", DefaultSQLitePath)
	v.SetDefault("auth_mode", DefaultAuthMode)
	v.SetDefault("basic_auth_users", "")
	v.SetDefault("api_keys", "")
	v.SetDefault("remote_url", DefaultRemoteURL)
	v.SetDefault("remote_api_key", "")
	v.SetDefault("cache_path", "")
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("partial_failure", DefaultPartialFailure)
	v.SetDefault("reorder_rollback", false)
	v.SetDefault("recipes_path", "")
	v.SetDefault("config_file", "")
}

// Load reads configuration from defaults, an optional config file and APP_*
// environment variables, in increasing priority. An empty configFile falls
// back to APP_CONFIG_FILE; when neither is set no file is read.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configFile == "" {
		configFile = v.GetString("config_file")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	return c.validateClient()
}

func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageSQLite:
		if c.SQLitePath == "" {
			return ErrMissingSQLitePath
		}
	default:
		return ErrInvalidStorageBackend
	}

	return nil
}

func (c *Config) validateAuth() error {
	switch c.AuthMode {
	case "none":
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.RemoteURL == "" {
		return ErrMissingRemoteURL
	}
	if c.CacheTTL < 0 {
		return ErrInvalidCacheTTL
	}
	if c.PartialFailure != PartialFailureLeave && c.PartialFailure != PartialFailureCompensate {
		return ErrInvalidPartialFailure
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
