package logging

import (
	"conversation-chaos/internal/config"
)

// DevelopmentLoggingConfig returns logging configuration optimized for development
func DevelopmentLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "debug",
		Format:               "console",
		Output:               "stdout",
		EnableRunTracing:     true,
		EnableCorrelationIDs: true,
		EnableMutationLog:    true, // Every timeline entry in dev
		LogSampling:          0,
	}
}

// ProductionLoggingConfig returns logging configuration optimized for production
func ProductionLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "info",
		Format:               "json",
		Output:               "stdout",
		EnableRunTracing:     true,
		EnableCorrelationIDs: true,
		EnableMutationLog:    false,
		LogSampling:          0,
	}
}

// TestLoggingConfig returns logging configuration optimized for testing
func TestLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "error",
		Format:               "json",
		Output:               "stderr",
		EnableRunTracing:     false,
		EnableCorrelationIDs: false,
		EnableMutationLog:    false,
		LogSampling:          0,
	}
}

// HighVolumeLoggingConfig returns logging configuration for high-volume environments
func HighVolumeLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "warn",
		Format:               "json",
		Output:               "stdout",
		EnableRunTracing:     true,
		EnableCorrelationIDs: true,
		EnableMutationLog:    true,
		LogSampling:          100, // One mutation line in a hundred
	}
}

// SetupEnvironmentLogging configures logging based on environment
func SetupEnvironmentLogging(cfg *config.Config, environment string) {
	switch environment {
	case "development", "dev":
		cfg.Logging = DevelopmentLoggingConfig()
	case "production", "prod":
		cfg.Logging = ProductionLoggingConfig()
	case "test", "testing":
		cfg.Logging = TestLoggingConfig()
	case "staging", "stage":
		prodConfig := ProductionLoggingConfig()
		prodConfig.Level = "debug"
		cfg.Logging = prodConfig
	case "high-volume":
		cfg.Logging = HighVolumeLoggingConfig()
	}
}
