package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Default host = %v, want %v", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != "6001" {
		t.Errorf("Default port = %v, want %v", cfg.Server.Port, "6001")
	}
	if cfg.Server.Frequency != 5*time.Minute {
		t.Errorf("Default frequency = %v, want %v", cfg.Server.Frequency, 5*time.Minute)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Default log level = %v, want %v", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Default log format = %v, want %v", cfg.Logging.Format, "text")
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Default log output = %v, want %v", cfg.Logging.Output, "stdout")
	}

	if cfg.Federation.FetchTimeout != 30*time.Second {
		t.Errorf("Default fetch timeout = %v, want %v", cfg.Federation.FetchTimeout, 30*time.Second)
	}
	if cfg.Federation.MaxCacheTTL != 1*time.Hour {
		t.Errorf("Default max cache ttl = %v, want %v", cfg.Federation.MaxCacheTTL, 1*time.Hour)
	}
	if cfg.Federation.MaxRedirects != 3 {
		t.Errorf("Default max redirects = %v, want %v", cfg.Federation.MaxRedirects, 3)
	}
	if cfg.Federation.MaxConcurrentFetch != 8 {
		t.Errorf("Default max concurrent fetch = %v, want %v", cfg.Federation.MaxConcurrentFetch, 8)
	}

	if cfg.Security.RateLimitRPS != 100 {
		t.Errorf("Default rate limit = %v, want %v", cfg.Security.RateLimitRPS, 100)
	}
	if cfg.Security.EnableCORS {
		t.Error("Default CORS should be disabled")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "0.0.0.0"
  port: "8080"
  frequency: "10m"

logging:
  level: "debug"
  format: "json"
  output: "/var/log/fedtrust.log"

federation:
  entity_id: "https://federation.example.com"
  fetch_timeout: "60s"
  max_cache_ttl: "2h"
  clock_skew: "1m"
  max_redirects: 5
  max_concurrent_fetch: 16
  allowed_hosts:
    - "*.example.com"
    - "*.federation.example.com"

security:
  rate_limit_rps: 200
  enable_cors: true
  allowed_origins:
    - "https://example.com"
    - "https://test.com"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %v, want %v", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %v, want %v", cfg.Server.Port, "8080")
	}
	if cfg.Server.Frequency != 10*time.Minute {
		t.Errorf("Frequency = %v, want %v", cfg.Server.Frequency, 10*time.Minute)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Log level = %v, want %v", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Log format = %v, want %v", cfg.Logging.Format, "json")
	}

	if cfg.Federation.EntityID != "https://federation.example.com" {
		t.Errorf("EntityID = %v, want %v", cfg.Federation.EntityID, "https://federation.example.com")
	}
	if cfg.Federation.FetchTimeout != 60*time.Second {
		t.Errorf("FetchTimeout = %v, want %v", cfg.Federation.FetchTimeout, 60*time.Second)
	}
	if cfg.Federation.MaxCacheTTL != 2*time.Hour {
		t.Errorf("MaxCacheTTL = %v, want %v", cfg.Federation.MaxCacheTTL, 2*time.Hour)
	}
	if cfg.Federation.MaxRedirects != 5 {
		t.Errorf("MaxRedirects = %v, want %v", cfg.Federation.MaxRedirects, 5)
	}
	if len(cfg.Federation.AllowedHosts) != 2 {
		t.Errorf("Allowed hosts count = %v, want %v", len(cfg.Federation.AllowedHosts), 2)
	}

	if cfg.Security.RateLimitRPS != 200 {
		t.Errorf("Rate limit RPS = %v, want %v", cfg.Security.RateLimitRPS, 200)
	}
	if !cfg.Security.EnableCORS {
		t.Error("CORS should be enabled")
	}
	if len(cfg.Security.AllowedOrigins) != 2 {
		t.Errorf("Allowed origins count = %v, want %v", len(cfg.Security.AllowedOrigins), 2)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	os.Setenv("FEDTRUST_HOST", "192.168.1.1")
	os.Setenv("FEDTRUST_PORT", "9000")
	os.Setenv("FEDTRUST_FREQUENCY", "15m")
	os.Setenv("FEDTRUST_LOG_LEVEL", "warn")
	os.Setenv("FEDTRUST_LOG_FORMAT", "json")
	os.Setenv("FEDTRUST_LOG_OUTPUT", "stderr")
	os.Setenv("FEDTRUST_ENTITY_ID", "https://rp.example.com")
	os.Setenv("FEDTRUST_RATE_LIMIT_RPS", "500")
	os.Setenv("FEDTRUST_ENABLE_CORS", "true")

	defer func() {
		os.Unsetenv("FEDTRUST_HOST")
		os.Unsetenv("FEDTRUST_PORT")
		os.Unsetenv("FEDTRUST_FREQUENCY")
		os.Unsetenv("FEDTRUST_LOG_LEVEL")
		os.Unsetenv("FEDTRUST_LOG_FORMAT")
		os.Unsetenv("FEDTRUST_LOG_OUTPUT")
		os.Unsetenv("FEDTRUST_ENTITY_ID")
		os.Unsetenv("FEDTRUST_RATE_LIMIT_RPS")
		os.Unsetenv("FEDTRUST_ENABLE_CORS")
	}()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Host != "192.168.1.1" {
		t.Errorf("Host = %v, want %v", cfg.Server.Host, "192.168.1.1")
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Port = %v, want %v", cfg.Server.Port, "9000")
	}
	if cfg.Server.Frequency != 15*time.Minute {
		t.Errorf("Frequency = %v, want %v", cfg.Server.Frequency, 15*time.Minute)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Log level = %v, want %v", cfg.Logging.Level, "warn")
	}
	if cfg.Federation.EntityID != "https://rp.example.com" {
		t.Errorf("EntityID = %v, want %v", cfg.Federation.EntityID, "https://rp.example.com")
	}
	if cfg.Security.RateLimitRPS != 500 {
		t.Errorf("Rate limit RPS = %v, want %v", cfg.Security.RateLimitRPS, 500)
	}
	if !cfg.Security.EnableCORS {
		t.Error("CORS should be enabled")
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("LoadConfig() should fail with nonexistent file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Error("LoadConfig() should fail with invalid YAML")
	}
}

func TestValidateConfig(t *testing.T) {
	validFederation := FederationConfig{
		FetchTimeout:       30 * time.Second,
		MaxCacheTTL:        1 * time.Hour,
		MaxRedirects:       3,
		MaxConcurrentFetch: 8,
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "Valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "Empty port",
			config: &Config{
				Server:     ServerConfig{Host: "127.0.0.1", Port: "", Frequency: 5 * time.Minute},
				Logging:    LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
				Federation: validFederation,
				Security:   SecurityConfig{RateLimitRPS: 100},
			},
			wantErr: true,
		},
		{
			name: "Negative frequency",
			config: &Config{
				Server:     ServerConfig{Host: "127.0.0.1", Port: "6001", Frequency: -1 * time.Minute},
				Logging:    LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
				Federation: validFederation,
				Security:   SecurityConfig{RateLimitRPS: 100},
			},
			wantErr: true,
		},
		{
			name: "Invalid log level",
			config: &Config{
				Server:     ServerConfig{Host: "127.0.0.1", Port: "6001", Frequency: 5 * time.Minute},
				Logging:    LoggingConfig{Level: "invalid", Format: "text", Output: "stdout"},
				Federation: validFederation,
				Security:   SecurityConfig{RateLimitRPS: 100},
			},
			wantErr: true,
		},
		{
			name: "Invalid log format",
			config: &Config{
				Server:     ServerConfig{Host: "127.0.0.1", Port: "6001", Frequency: 5 * time.Minute},
				Logging:    LoggingConfig{Level: "info", Format: "invalid", Output: "stdout"},
				Federation: validFederation,
				Security:   SecurityConfig{RateLimitRPS: 100},
			},
			wantErr: true,
		},
		{
			name: "Negative fetch timeout",
			config: &Config{
				Server:  ServerConfig{Host: "127.0.0.1", Port: "6001", Frequency: 5 * time.Minute},
				Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
				Federation: FederationConfig{
					FetchTimeout: -1 * time.Second, MaxCacheTTL: time.Hour, MaxConcurrentFetch: 8,
				},
				Security: SecurityConfig{RateLimitRPS: 100},
			},
			wantErr: true,
		},
		{
			name: "Negative max redirects",
			config: &Config{
				Server:  ServerConfig{Host: "127.0.0.1", Port: "6001", Frequency: 5 * time.Minute},
				Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
				Federation: FederationConfig{
					FetchTimeout: 30 * time.Second, MaxCacheTTL: time.Hour, MaxRedirects: -1, MaxConcurrentFetch: 8,
				},
				Security: SecurityConfig{RateLimitRPS: 100},
			},
			wantErr: true,
		},
		{
			name: "Non-positive rate limit",
			config: &Config{
				Server:     ServerConfig{Host: "127.0.0.1", Port: "6001", Frequency: 5 * time.Minute},
				Logging:    LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
				Federation: validFederation,
				Security:   SecurityConfig{RateLimitRPS: 0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverridesWithFederationAndSecurityConfig(t *testing.T) {
	os.Setenv("FEDTRUST_FETCH_TIMEOUT", "120s")
	os.Setenv("FEDTRUST_MAX_CACHE_TTL", "3h")
	os.Setenv("FEDTRUST_MAX_REDIRECTS", "10")
	os.Setenv("FEDTRUST_ALLOWED_HOSTS", "*.example.com,*.test.org")
	os.Setenv("FEDTRUST_ALLOWED_ORIGINS", "https://app1.com,https://app2.com")

	defer func() {
		os.Unsetenv("FEDTRUST_FETCH_TIMEOUT")
		os.Unsetenv("FEDTRUST_MAX_CACHE_TTL")
		os.Unsetenv("FEDTRUST_MAX_REDIRECTS")
		os.Unsetenv("FEDTRUST_ALLOWED_HOSTS")
		os.Unsetenv("FEDTRUST_ALLOWED_ORIGINS")
	}()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Federation.FetchTimeout != 120*time.Second {
		t.Errorf("FetchTimeout = %v, want %v", cfg.Federation.FetchTimeout, 120*time.Second)
	}
	if cfg.Federation.MaxCacheTTL != 3*time.Hour {
		t.Errorf("MaxCacheTTL = %v, want %v", cfg.Federation.MaxCacheTTL, 3*time.Hour)
	}
	if cfg.Federation.MaxRedirects != 10 {
		t.Errorf("MaxRedirects = %v, want %v", cfg.Federation.MaxRedirects, 10)
	}
	if len(cfg.Federation.AllowedHosts) != 2 {
		t.Errorf("Allowed hosts count = %v, want %v", len(cfg.Federation.AllowedHosts), 2)
	}

	if len(cfg.Security.AllowedOrigins) != 2 {
		t.Errorf("Allowed origins count = %v, want %v", len(cfg.Security.AllowedOrigins), 2)
	}
}
