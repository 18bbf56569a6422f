// Package config provides configuration management for the federation
// trust-chain engine. It supports loading configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SUNET/fedtrust/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration structure.
// It includes settings for the server, logging, federation entity, and security.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Federation FederationConfig `yaml:"federation"`
	Security   SecurityConfig   `yaml:"security"`
}

// ServerConfig contains HTTP server configuration settings.
type ServerConfig struct {
	Host      string        `yaml:"host"`
	Port      string        `yaml:"port"`
	Frequency time.Duration `yaml:"frequency"`
}

// LoggingConfig contains logging configuration settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// FederationConfig contains the settings that shape this entity's
// participation in the federation: its own identifier and keys, how
// aggressively it fetches and caches statements, and the tolerances applied
// during chain verification.
type FederationConfig struct {
	EntityID           string        `yaml:"entity_id"`
	SigningCertPath    string        `yaml:"signing_cert_path"`
	SigningKeyPath     string        `yaml:"signing_key_path"`
	TrustAnchorsPath   string        `yaml:"trust_anchors_path"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	MaxCacheTTL        time.Duration `yaml:"max_cache_ttl"`
	ClockSkew          time.Duration `yaml:"clock_skew"`
	MaxRedirects       int           `yaml:"max_redirects"`
	MaxConcurrentFetch int           `yaml:"max_concurrent_fetch"`
	AllowedHosts       []string      `yaml:"allowed_hosts"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	CacheRedisAddr     string        `yaml:"cache_redis_addr"`
}

// SecurityConfig contains security-related configuration settings.
type SecurityConfig struct {
	RateLimitRPS   int      `yaml:"rate_limit_rps"`
	EnableCORS     bool     `yaml:"enable_cors"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      "6001",
			Frequency: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Federation: FederationConfig{
			FetchTimeout:       30 * time.Second,
			MaxCacheTTL:        1 * time.Hour,
			ClockSkew:          120 * time.Second,
			MaxRedirects:       3,
			MaxConcurrentFetch: 8,
			AllowedHosts:       []string{},
		},
		Security: SecurityConfig{
			RateLimitRPS:   100,
			EnableCORS:     false,
			AllowedOrigins: []string{},
		},
	}
}

// LoadConfig loads configuration from a YAML file and applies environment variable overrides.
// It returns the merged configuration or an error if loading fails.
//
// Environment variables override configuration file values using the FEDTRUST_ prefix:
//   - FEDTRUST_HOST, FEDTRUST_PORT, FEDTRUST_FREQUENCY for server settings
//   - FEDTRUST_LOG_LEVEL, FEDTRUST_LOG_FORMAT, FEDTRUST_LOG_OUTPUT for logging
//   - FEDTRUST_ENTITY_ID, FEDTRUST_FETCH_TIMEOUT, FEDTRUST_MAX_CACHE_TTL, FEDTRUST_CLOCK_SKEW for federation settings
//   - FEDTRUST_RATE_LIMIT_RPS for security settings
//
// If configPath is empty, only default values and environment variables are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := validation.ValidateConfigPath(configPath); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables take precedence over config file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEDTRUST_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FEDTRUST_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("FEDTRUST_FREQUENCY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.Frequency = d
		}
	}

	if v := os.Getenv("FEDTRUST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FEDTRUST_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FEDTRUST_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}

	if v := os.Getenv("FEDTRUST_ENTITY_ID"); v != "" {
		cfg.Federation.EntityID = v
	}
	if v := os.Getenv("FEDTRUST_SIGNING_CERT_PATH"); v != "" {
		cfg.Federation.SigningCertPath = v
	}
	if v := os.Getenv("FEDTRUST_SIGNING_KEY_PATH"); v != "" {
		cfg.Federation.SigningKeyPath = v
	}
	if v := os.Getenv("FEDTRUST_TRUST_ANCHORS_PATH"); v != "" {
		cfg.Federation.TrustAnchorsPath = v
	}
	if v := os.Getenv("FEDTRUST_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Federation.FetchTimeout = d
		}
	}
	if v := os.Getenv("FEDTRUST_MAX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Federation.MaxCacheTTL = d
		}
	}
	if v := os.Getenv("FEDTRUST_CLOCK_SKEW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Federation.ClockSkew = d
		}
	}
	if v := os.Getenv("FEDTRUST_MAX_REDIRECTS"); v != "" {
		if redirects, err := strconv.Atoi(v); err == nil {
			cfg.Federation.MaxRedirects = redirects
		}
	}
	if v := os.Getenv("FEDTRUST_MAX_CONCURRENT_FETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Federation.MaxConcurrentFetch = n
		}
	}
	if v := os.Getenv("FEDTRUST_ALLOWED_HOSTS"); v != "" {
		cfg.Federation.AllowedHosts = strings.Split(v, ",")
	}
	if v := os.Getenv("FEDTRUST_INSECURE_SKIP_VERIFY"); v != "" {
		cfg.Federation.InsecureSkipVerify = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("FEDTRUST_CACHE_REDIS_ADDR"); v != "" {
		cfg.Federation.CacheRedisAddr = v
	}

	if v := os.Getenv("FEDTRUST_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.Atoi(v); err == nil {
			cfg.Security.RateLimitRPS = rps
		}
	}
	if v := os.Getenv("FEDTRUST_ENABLE_CORS"); v != "" {
		cfg.Security.EnableCORS = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("FEDTRUST_ALLOWED_ORIGINS"); v != "" {
		cfg.Security.AllowedOrigins = strings.Split(v, ",")
	}
}

// Validate checks if the configuration is valid.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Frequency <= 0 {
		return fmt.Errorf("server frequency must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Federation.FetchTimeout <= 0 {
		return fmt.Errorf("federation fetch timeout must be positive")
	}
	if c.Federation.MaxCacheTTL <= 0 {
		return fmt.Errorf("federation max cache ttl must be positive")
	}
	if c.Federation.ClockSkew < 0 {
		return fmt.Errorf("federation clock skew cannot be negative")
	}
	if c.Federation.MaxRedirects < 0 {
		return fmt.Errorf("max redirects cannot be negative")
	}
	if c.Federation.MaxConcurrentFetch <= 0 {
		return fmt.Errorf("max concurrent fetch must be positive")
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	return nil
}
