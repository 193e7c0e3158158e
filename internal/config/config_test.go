package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Server.Host != "localhost" {
		t.Errorf("Expected default host to be localhost, got %s", config.Server.Host)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", config.Server.Port)
	}

	if config.Engine.DefaultSeed != 42 {
		t.Errorf("Expected default seed to be 42, got %d", config.Engine.DefaultSeed)
	}

	if config.Engine.ValidationSeed != 1 {
		t.Errorf("Expected default validation seed to be 1, got %d", config.Engine.ValidationSeed)
	}

	if config.Ledger.Backend != "badger" {
		t.Errorf("Expected default ledger backend to be badger, got %s", config.Ledger.Backend)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "test-config.yaml")

	configContent := `
server:
  host: "0.0.0.0"
  port: 9000
  grpc_port: 9001

engine:
  default_seed: 7
  validation_samples: 500

ledger:
  backend: "redis"
  redis_addr: "redis:6379"
  record_ttl: 1h

logging:
  level: "debug"
  format: "text"

metrics:
  enabled: false
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host to be 0.0.0.0, got %s", config.Server.Host)
	}

	if config.Server.Port != 9000 {
		t.Errorf("Expected port to be 9000, got %d", config.Server.Port)
	}

	if config.Engine.DefaultSeed != 7 {
		t.Errorf("Expected default seed to be 7, got %d", config.Engine.DefaultSeed)
	}

	if config.Engine.MaxMessages != 100000 {
		t.Errorf("Expected unset max messages to keep its default, got %d", config.Engine.MaxMessages)
	}

	if config.Ledger.Backend != "redis" || config.Ledger.RedisAddr != "redis:6379" {
		t.Errorf("Expected redis ledger at redis:6379, got %s at %s", config.Ledger.Backend, config.Ledger.RedisAddr)
	}

	if config.Ledger.RecordTTL != time.Hour {
		t.Errorf("Expected record TTL to be 1h, got %v", config.Ledger.RecordTTL)
	}

	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}

	if config.Metrics.Enabled {
		t.Error("Expected metrics to be disabled")
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configFile, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Expected error for unsupported config format")
	}
}

func TestLoadIfExists(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := Load(missing); err == nil {
		t.Error("Expected Load to fail for a missing file")
	}

	config, err := LoadIfExists(missing)
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got %v", err)
	}
	if config.Ledger.Backend != "badger" {
		t.Errorf("Expected default ledger backend, got %s", config.Ledger.Backend)
	}

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(broken, []byte("server: ["), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	if _, err := LoadIfExists(broken); err == nil {
		t.Error("Expected a malformed file to still fail")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CHAOS_SERVER_HOST", "test-host")
	t.Setenv("CHAOS_SERVER_PORT", "6000")
	t.Setenv("CHAOS_ENGINE_DEFAULT_SEED", "99")
	t.Setenv("CHAOS_LEDGER_BACKEND", "redis")
	t.Setenv("CHAOS_LEDGER_IN_MEMORY", "true")
	t.Setenv("CHAOS_LOG_LEVEL", "error")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Host != "test-host" {
		t.Errorf("Expected host to be test-host, got %s", config.Server.Host)
	}

	if config.Server.Port != 6000 {
		t.Errorf("Expected port to be 6000, got %d", config.Server.Port)
	}

	if config.Engine.DefaultSeed != 99 {
		t.Errorf("Expected default seed to be 99, got %d", config.Engine.DefaultSeed)
	}

	if config.Ledger.Backend != "redis" {
		t.Errorf("Expected ledger backend to be redis, got %s", config.Ledger.Backend)
	}

	if !config.Ledger.InMemory {
		t.Error("Expected in-memory ledger")
	}

	if config.Logging.Level != "error" {
		t.Errorf("Expected log level to be error, got %s", config.Logging.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		configFunc  func() *Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			configFunc: func() *Config {
				return DefaultConfig()
			},
			expectError: false,
		},
		{
			name: "invalid server port",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Server.Port = 0
				return config
			},
			expectError: true,
			errorMsg:    "invalid server port",
		},
		{
			name: "ports conflict",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Server.GRPCPort = config.Server.Port
				return config
			},
			expectError: true,
			errorMsg:    "server port and gRPC port cannot be the same",
		},
		{
			name: "rate limit without rate",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Server.RateLimit.Enabled = true
				config.Server.RateLimit.RequestsPerSecond = 0
				return config
			},
			expectError: true,
			errorMsg:    "rate limit must be positive",
		},
		{
			name: "rate limit without burst",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Server.RateLimit.Enabled = true
				config.Server.RateLimit.Burst = 0
				return config
			},
			expectError: true,
			errorMsg:    "rate limit burst must be at least 1",
		},
		{
			name: "disabled rate limit is not checked",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Server.RateLimit.RequestsPerSecond = 0
				return config
			},
			expectError: false,
		},
		{
			name: "non-positive validation samples",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Engine.ValidationSamples = 0
				return config
			},
			expectError: true,
			errorMsg:    "validation samples must be positive",
		},
		{
			name: "unknown ledger backend",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Ledger.Backend = "sqlite"
				return config
			},
			expectError: true,
			errorMsg:    "invalid ledger backend",
		},
		{
			name: "empty badger path",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Ledger.DataPath = ""
				return config
			},
			expectError: true,
			errorMsg:    "ledger data path cannot be empty",
		},
		{
			name: "in-memory badger needs no path",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Ledger.DataPath = ""
				config.Ledger.InMemory = true
				return config
			},
			expectError: false,
		},
		{
			name: "redis without address",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Ledger.Backend = "redis"
				config.Ledger.RedisAddr = ""
				return config
			},
			expectError: true,
			errorMsg:    "redis address cannot be empty",
		},
		{
			name: "invalid log level",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Logging.Level = "invalid"
				return config
			},
			expectError: true,
			errorMsg:    "invalid log level",
		},
		{
			name: "invalid tracing exporter",
			configFunc: func() *Config {
				config := DefaultConfig()
				config.Tracing.Enabled = true
				config.Tracing.ExporterType = "zipkin"
				return config
			},
			expectError: true,
			errorMsg:    "invalid tracing exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.configFunc()
			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected validation error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no validation error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	config := DefaultConfig()
	configStr := config.String()

	if configStr == "" {
		t.Error("Config string should not be empty")
	}

	for _, section := range []string{"server:", "engine:", "ledger:"} {
		if !strings.Contains(configStr, section) {
			t.Errorf("Config string should contain %s section", section)
		}
	}
}
