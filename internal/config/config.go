// Package config provides configuration loading and management for the converter.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all converter configuration.
type Config struct {
	// Octant backend base URL
	BaseURL string `yaml:"base_url"`

	// Exchange-rate provider base URL (CoinGecko-compatible)
	RatesURL string `yaml:"rates_url"`

	// Directory the DAOIP-5 documents are written to
	OutputDir string `yaml:"output_dir"`

	// Retry and timeout settings for upstream requests
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Client-side rate limit towards the Octant backend
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// Bounded worker pool size for per-epoch application generation
	Workers int `yaml:"workers"`

	// Optional listen address for the Prometheus endpoint, e.g. ":9090"
	MetricsAddr string `yaml:"metrics_addr"`

	// OpenTelemetry OTLP endpoint; empty disables tracing
	OtelEndpoint string `yaml:"otel_endpoint"`
}

// Load creates a Config from environment variables.
func Load() Config {
	return Config{
		BaseURL:        GetEnvOrDefault("OCTANT_BASE_URL", "https://backend.mainnet.octant.app"),
		RatesURL:       GetEnvOrDefault("RATES_BASE_URL", "https://api.coingecko.com"),
		OutputDir:      GetEnvOrDefault("OUTPUT_DIR", "./daoip5_output"),
		MaxRetries:     GetEnvAsInt("MAX_RETRIES", 3),
		RetryDelay:     GetEnvAsDuration("RETRY_DELAY", time.Second),
		RequestTimeout: GetEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitRPS:   GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst: GetEnvAsInt("RATE_LIMIT_BURST", 20),
		Workers:        GetEnvAsInt("WORKERS", 4),
		MetricsAddr:    GetEnvOrDefault("METRICS_ADDR", ""),
		OtelEndpoint:   GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// LoadFile reads a YAML config file, expands ${VAR} environment references,
// and overlays it on the environment defaults.
func LoadFile(path string) (Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists.
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set.
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value.
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value.
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
