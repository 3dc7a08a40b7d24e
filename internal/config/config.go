// Package config provides client configuration management.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Keys shared between viper, flags and the config file.
const (
	KeyAPIBase        = "api_base"
	KeyStore          = "store"
	KeyStorePath      = "store_path"
	KeyRedisURL       = "redis_url"
	KeyRedisPrefix    = "redis_prefix"
	KeyRequestTimeout = "request_timeout"
	KeyRefreshTimeout = "refresh_timeout"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyEnvironment    = "environment"
)

var envNames = map[string]string{
	KeyAPIBase:        "LEARNFLOW_API_BASE",
	KeyStore:          "LEARNFLOW_STORE",
	KeyStorePath:      "LEARNFLOW_STORE_PATH",
	KeyRedisURL:       "LEARNFLOW_REDIS_URL",
	KeyRedisPrefix:    "LEARNFLOW_REDIS_PREFIX",
	KeyRequestTimeout: "LEARNFLOW_REQUEST_TIMEOUT",
	KeyRefreshTimeout: "LEARNFLOW_REFRESH_TIMEOUT",
	KeyLogLevel:       "LOG_LEVEL",
	KeyLogFormat:      "LOG_FORMAT",
	KeyEnvironment:    "ENVIRONMENT",
}

// Config defines the client configuration interface.
type Config interface {
	GetAPIBase() string
	GetEnvironment() string
	GetLogLevel() string
	IsProduction() bool
}

// StoreConfig interface for credential storage configuration.
type StoreConfig interface {
	GetStore() string
	GetStorePath() string
	GetRedisURL() string
	GetRedisPrefix() string
}

// TimeoutConfig interface for network timeouts.
type TimeoutConfig interface {
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
}

// AppConfig implements all configuration interfaces.
type AppConfig struct {
	apiBase        string
	store          string
	storePath      string
	redisURL       string
	redisPrefix    string
	logLevel       string
	logFormat      string
	environment    string
	requestTimeout time.Duration
	refreshTimeout time.Duration
}

// NewConfig creates a configuration from defaults and environment variables.
func NewConfig() *AppConfig {
	return Load(viper.New())
}

// Load binds defaults and environment variables on v and reads the result.
// Values already bound on v (flags, a config file) take precedence over the
// environment.
func Load(v *viper.Viper) *AppConfig {
	Bind(v)

	return &AppConfig{
		apiBase:        strings.TrimSuffix(strings.TrimSpace(v.GetString(KeyAPIBase)), "/"),
		store:          strings.ToLower(strings.TrimSpace(v.GetString(KeyStore))),
		storePath:      v.GetString(KeyStorePath),
		redisURL:       v.GetString(KeyRedisURL),
		redisPrefix:    v.GetString(KeyRedisPrefix),
		logLevel:       v.GetString(KeyLogLevel),
		logFormat:      strings.ToLower(v.GetString(KeyLogFormat)),
		environment:    v.GetString(KeyEnvironment),
		requestTimeout: v.GetDuration(KeyRequestTimeout),
		refreshTimeout: v.GetDuration(KeyRefreshTimeout),
	}
}

// Bind registers defaults and environment names on v.
func Bind(v *viper.Viper) {
	v.SetDefault(KeyAPIBase, "http://localhost:8000")
	v.SetDefault(KeyStore, StoreFile)
	v.SetDefault(KeyStorePath, defaultStorePath())
	v.SetDefault(KeyRedisPrefix, "learnflow")
	v.SetDefault(KeyRequestTimeout, "30s")
	v.SetDefault(KeyRefreshTimeout, "10s")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyEnvironment, "development")

	for key, env := range envNames {
		_ = v.BindEnv(key, env)
	}
}

// GetAPIBase returns the API base URL without a trailing slash.
func (c *AppConfig) GetAPIBase() string {
	return c.apiBase
}

// GetStore returns the credential store backend.
func (c *AppConfig) GetStore() string {
	return c.store
}

// GetStorePath returns the credential file path for the file backend.
func (c *AppConfig) GetStorePath() string {
	return c.storePath
}

// GetRedisURL returns the Redis URL for the redis backend.
func (c *AppConfig) GetRedisURL() string {
	return c.redisURL
}

// GetRedisPrefix returns the key prefix for the redis backend.
func (c *AppConfig) GetRedisPrefix() string {
	return c.redisPrefix
}

// GetRequestTimeout returns the timeout applied to business calls.
func (c *AppConfig) GetRequestTimeout() time.Duration {
	return c.requestTimeout
}

// GetRefreshTimeout returns the bound on one refresh exchange.
func (c *AppConfig) GetRefreshTimeout() time.Duration {
	return c.refreshTimeout
}

// GetLogLevel returns the log level configuration.
func (c *AppConfig) GetLogLevel() string {
	return c.logLevel
}

// GetLogFormat returns the log format, json or text.
func (c *AppConfig) GetLogFormat() string {
	return c.logFormat
}

// GetEnvironment returns the application environment configuration.
func (c *AppConfig) GetEnvironment() string {
	return c.environment
}

// IsProduction returns true if the application is running in production environment.
func (c *AppConfig) IsProduction() bool {
	return c.environment == "production"
}

// Validate checks if the configuration is valid.
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.apiBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API base must be an absolute http(s) URL, got %q", c.apiBase)
	}

	switch c.store {
	case StoreFile:
		if c.storePath == "" {
			return fmt.Errorf("store path cannot be empty for the file store")
		}
	case StoreRedis:
		if c.redisURL == "" {
			return fmt.Errorf("redis URL is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("store must be one of: file, redis, memory")
	}

	if c.requestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.refreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive")
	}

	if c.logFormat != "json" && c.logFormat != "text" {
		return fmt.Errorf("log format must be one of: json, text")
	}

	if c.environment != "development" && c.environment != "staging" && c.environment != "production" {
		return fmt.Errorf("environment must be one of: development, staging, production")
	}

	return nil
}

func defaultStorePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".learnflow", "credentials.yaml")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "learnflow", "credentials.yaml")
	}
	return ""
}
