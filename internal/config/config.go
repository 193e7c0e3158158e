package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Ledger  LedgerConfig  `yaml:"ledger" json:"ledger"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

type ServerConfig struct {
	Host         string          `yaml:"host" json:"host"`
	Port         int             `yaml:"port" json:"port"`
	GRPCPort     int             `yaml:"grpc_port" json:"grpc_port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" json:"idle_timeout"`
	MaxBodySize  int64           `yaml:"max_body_size" json:"max_body_size"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig caps requests per client IP on the REST API.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" json:"idle_timeout"` // Forget clients idle this long
}

// EngineConfig tunes the chaos engine.
type EngineConfig struct {
	DefaultSeed       int64 `yaml:"default_seed" json:"default_seed"`             // Seed when no configuration names one
	MaxMessages       int   `yaml:"max_messages" json:"max_messages"`             // Largest conversation accepted by the API
	ValidationSamples int   `yaml:"validation_samples" json:"validation_samples"` // Default trials for distribution checks
	ValidationSeed    int64 `yaml:"validation_seed" json:"validation_seed"`       // Base of the hashed per-trial seeds
}

// LedgerConfig selects where fingerprinted runs are recorded.
type LedgerConfig struct {
	Backend       string        `yaml:"backend" json:"backend"` // "badger" or "redis"
	DataPath      string        `yaml:"data_path" json:"data_path"`
	InMemory      bool          `yaml:"in_memory" json:"in_memory"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix" json:"key_prefix"`
	RecordTTL     time.Duration `yaml:"record_ttl" json:"record_ttl"` // 0 = keep forever
	CacheSize     int           `yaml:"cache_size" json:"cache_size"` // 0 = no read cache
}

type LoggingConfig struct {
	Level                string `yaml:"level" json:"level"`
	Format               string `yaml:"format" json:"format"`
	Output               string `yaml:"output" json:"output"`
	EnableRunTracing     bool   `yaml:"enable_run_tracing" json:"enable_run_tracing"`
	EnableCorrelationIDs bool   `yaml:"enable_correlation_ids" json:"enable_correlation_ids"`
	EnableMutationLog    bool   `yaml:"enable_mutation_log" json:"enable_mutation_log"` // Log every timeline entry at debug level
	LogSampling          int    `yaml:"log_sampling" json:"log_sampling"`               // 0 = no sampling, N = log every Nth mutation
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type TracingConfig struct {
	Enabled        bool              `yaml:"enabled" json:"enabled"`
	ServiceName    string            `yaml:"service_name" json:"service_name"`
	ServiceVersion string            `yaml:"service_version" json:"service_version"`
	Environment    string            `yaml:"environment" json:"environment"`
	ExporterType   string            `yaml:"exporter_type" json:"exporter_type"`
	JaegerEndpoint string            `yaml:"jaeger_endpoint" json:"jaeger_endpoint"`
	OTLPEndpoint   string            `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	OTLPHeaders    map[string]string `yaml:"otlp_headers" json:"otlp_headers"`
	SamplingRatio  float64           `yaml:"sampling_ratio" json:"sampling_ratio"`
}

func Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadIfExists behaves like Load but falls back to defaults and environment
// overrides when the file does not exist.
func LoadIfExists(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			configPath = ""
		}
	}
	return Load(configPath)
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			GRPCPort:     9090,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxBodySize:  8 * 1024 * 1024, // 8MB
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 20,
				Burst:             40,
				IdleTimeout:       10 * time.Minute,
			},
		},
		Engine: EngineConfig{
			DefaultSeed:       42,
			MaxMessages:       100000,
			ValidationSamples: 1000,
			ValidationSeed:    1,
		},
		Ledger: LedgerConfig{
			Backend:   "badger",
			DataPath:  "./data/ledger",
			InMemory:  false,
			RedisAddr: "localhost:6379",
			RedisDB:   0,
			KeyPrefix: "chaos",
			CacheSize: 256,
		},
		Logging: LoggingConfig{
			Level:                "info",
			Format:               "json",
			Output:               "stdout",
			EnableRunTracing:     true,
			EnableCorrelationIDs: true,
			EnableMutationLog:    false,
			LogSampling:          0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "conversation-chaos",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			ExporterType:   "console",
			JaegerEndpoint: "http://localhost:14268/api/traces",
			OTLPEndpoint:   "localhost:4318",
			OTLPHeaders:    make(map[string]string),
			SamplingRatio:  1.0,
		},
	}
}

func loadFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

// loadFromEnvironment applies CHAOS_* overrides. Values that fail to parse
// are ignored and the file or default value stays.
func loadFromEnvironment(config *Config) {
	envString("CHAOS_SERVER_HOST", &config.Server.Host)
	envInt("CHAOS_SERVER_PORT", &config.Server.Port)
	envInt("CHAOS_SERVER_GRPC_PORT", &config.Server.GRPCPort)
	envBool("CHAOS_SERVER_RATE_LIMIT_ENABLED", &config.Server.RateLimit.Enabled)
	envFloat("CHAOS_SERVER_RATE_LIMIT_RPS", &config.Server.RateLimit.RequestsPerSecond)

	envInt64("CHAOS_ENGINE_DEFAULT_SEED", &config.Engine.DefaultSeed)
	envInt("CHAOS_ENGINE_VALIDATION_SAMPLES", &config.Engine.ValidationSamples)

	envString("CHAOS_LEDGER_BACKEND", &config.Ledger.Backend)
	envString("CHAOS_LEDGER_DATA_PATH", &config.Ledger.DataPath)
	envBool("CHAOS_LEDGER_IN_MEMORY", &config.Ledger.InMemory)
	envString("CHAOS_LEDGER_REDIS_ADDR", &config.Ledger.RedisAddr)
	envString("CHAOS_LEDGER_REDIS_PASSWORD", &config.Ledger.RedisPassword)

	envString("CHAOS_LOG_LEVEL", &config.Logging.Level)
	envString("CHAOS_LOG_FORMAT", &config.Logging.Format)

	envBool("CHAOS_METRICS_ENABLED", &config.Metrics.Enabled)

	envBool("CHAOS_TRACING_ENABLED", &config.Tracing.Enabled)
	envString("CHAOS_TRACING_EXPORTER", &config.Tracing.ExporterType)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func envInt64(key string, dst *int64) {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		*dst = v
	}
}

func envFloat(key string, dst *float64) {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}
	if c.Server.Port == c.Server.GRPCPort {
		return fmt.Errorf("server port and gRPC port cannot be the same: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("max body size must be positive")
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit must be positive when enabled")
		}
		if c.Server.RateLimit.Burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1")
		}
	}

	// Engine validation
	if c.Engine.MaxMessages <= 0 {
		return fmt.Errorf("max messages must be positive")
	}
	if c.Engine.ValidationSamples <= 0 {
		return fmt.Errorf("validation samples must be positive")
	}

	// Ledger validation
	switch strings.ToLower(c.Ledger.Backend) {
	case "badger":
		if !c.Ledger.InMemory && c.Ledger.DataPath == "" {
			return fmt.Errorf("ledger data path cannot be empty when not using in-memory storage")
		}
	case "redis":
		if c.Ledger.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty for the redis ledger")
		}
	default:
		return fmt.Errorf("invalid ledger backend: %s", c.Ledger.Backend)
	}
	if c.Ledger.RecordTTL < 0 {
		return fmt.Errorf("record TTL cannot be negative")
	}
	if c.Ledger.CacheSize < 0 {
		return fmt.Errorf("ledger cache size cannot be negative")
	}

	// Logging validation
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if c.Logging.LogSampling < 0 {
		return fmt.Errorf("log sampling cannot be negative")
	}

	// Metrics validation
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics path cannot be empty when metrics are enabled")
	}

	// Tracing validation
	if c.Tracing.Enabled {
		switch c.Tracing.ExporterType {
		case "console", "otlp", "jaeger":
		default:
			return fmt.Errorf("invalid tracing exporter: %s", c.Tracing.ExporterType)
		}
		if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
			return fmt.Errorf("tracing sampling ratio must be within [0,1]")
		}
	}

	return nil
}

func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
