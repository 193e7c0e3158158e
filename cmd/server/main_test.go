package main

import (
	"path/filepath"
	"testing"

	"conversation-chaos/internal/logging"
)

func TestLoadConfigEnvironmentPreset(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	tests := []struct {
		env       string
		level     string
		sampling  int
		mutations bool
	}{
		{"development", "debug", 0, true},
		{"production", "info", 0, false},
		{"staging", "debug", 0, false},
		{"high-volume", "warn", 100, true},
		{"test", "error", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("CHAOS_ENV", tt.env)
			cfg, err := loadConfig(missing)
			if err != nil {
				t.Fatalf("Failed to load configuration: %v", err)
			}
			if cfg.Logging.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, cfg.Logging.Level)
			}
			if cfg.Logging.LogSampling != tt.sampling {
				t.Errorf("Expected sampling %d, got %d", tt.sampling, cfg.Logging.LogSampling)
			}
			if cfg.Logging.EnableMutationLog != tt.mutations {
				t.Errorf("Expected mutation log %v, got %v", tt.mutations, cfg.Logging.EnableMutationLog)
			}
		})
	}
}

func TestLoadConfigWithoutEnvironment(t *testing.T) {
	t.Setenv("CHAOS_ENV", "")
	t.Setenv("CHAOS_LOG_LEVEL", "warn")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected level from the environment, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Output == logging.TestLoggingConfig().Output {
		t.Errorf("Expected the default output, got %s", cfg.Logging.Output)
	}
}
