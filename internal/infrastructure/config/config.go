package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/LordSimal/gin-sentry/internal/database"
)

// ModulePath is the default in-app prefix.
const ModulePath = "github.com/LordSimal/gin-sentry"

// Tracing backends.
const (
	BackendSentry = "sentry"
	BackendOTel   = "otel"
	BackendLog    = "log"
)

var (
	ErrUnknownSetting  = errors.New("config: unknown sentry setting")
	ErrInvalidSetting  = errors.New("config: invalid sentry setting")
	ErrUnsupportedFile = errors.New("config: unsupported config file type")
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	Sentry    SentryConfig    `yaml:"sentry" toml:"sentry"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Upstream  UpstreamConfig  `yaml:"upstream" toml:"upstream"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000" yaml:"port" toml:"port"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`
	AllowedOrigins  []string      `envconfig:"CORS_ORIGINS" default:"*" yaml:"allowed_origins" toml:"allowed_origins"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	// GRPCPort serves the gRPC health service. Empty disables gRPC.
	GRPCPort string `envconfig:"GRPC_PORT" yaml:"grpc_port" toml:"grpc_port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// SentryConfig holds the error tracking and tracing settings.
type SentryConfig struct {
	// DSN gates the whole integration. Empty means inert.
	DSN              string  `envconfig:"SENTRY_DSN" yaml:"dsn" toml:"dsn"`
	Backend          string  `envconfig:"SENTRY_BACKEND" default:"sentry" yaml:"backend" toml:"backend"`
	Environment      string  `envconfig:"SENTRY_ENVIRONMENT" default:"production" yaml:"environment" toml:"environment"`
	Release          string  `envconfig:"SENTRY_RELEASE" yaml:"release" toml:"release"`
	Debug            bool    `envconfig:"SENTRY_DEBUG" default:"false" yaml:"debug" toml:"debug"`
	TracesSampleRate float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE" default:"1.0" yaml:"traces_sample_rate" toml:"traces_sample_rate"`

	Prefixes     []string `envconfig:"SENTRY_PREFIXES" default:"github.com/LordSimal/gin-sentry" yaml:"prefixes" toml:"prefixes"`
	InAppExclude []string `envconfig:"SENTRY_IN_APP_EXCLUDE" default:"/pkg/mod/,/vendor/" yaml:"in_app_exclude" toml:"in_app_exclude"`

	IncludeSchemaReflection     bool     `envconfig:"SENTRY_INCLUDE_SCHEMA_REFLECTION" default:"false" yaml:"include_schema_reflection" toml:"include_schema_reflection"`
	EnableQueryLogging          bool     `envconfig:"SENTRY_ENABLE_QUERY_LOGGING" default:"false" yaml:"enable_query_logging" toml:"enable_query_logging"`
	EnablePerformanceMonitoring bool     `envconfig:"SENTRY_ENABLE_PERFORMANCE_MONITORING" default:"false" yaml:"enable_performance_monitoring" toml:"enable_performance_monitoring"`
	AuxiliaryConnections        []string `envconfig:"SENTRY_AUXILIARY_CONNECTIONS" default:"debug_kit" yaml:"auxiliary_connections" toml:"auxiliary_connections"`

	// TrustRequestStart honours X-Request-Start. Enable only behind a proxy
	// that overwrites the header.
	TrustRequestStart bool `envconfig:"SENTRY_TRUST_REQUEST_START" default:"false" yaml:"trust_request_start" toml:"trust_request_start"`

	OTLPEndpoint string        `envconfig:"SENTRY_OTLP_ENDPOINT" yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	OTLPInsecure bool          `envconfig:"SENTRY_OTLP_INSECURE" default:"false" yaml:"otlp_insecure" toml:"otlp_insecure"`
	FlushTimeout time.Duration `envconfig:"SENTRY_FLUSH_TIMEOUT" default:"2s" yaml:"flush_timeout" toml:"flush_timeout"`
}

// Enabled reports whether a DSN is configured.
func (c SentryConfig) Enabled() bool {
	return c.DSN != ""
}

// DatabaseConfig holds database connections.
type DatabaseConfig struct {
	URL       string `envconfig:"DATABASE_URL" yaml:"url" toml:"url"`
	System    string `envconfig:"DATABASE_SYSTEM" default:"postgresql" yaml:"system" toml:"system"`
	Log       bool   `envconfig:"DATABASE_LOG" default:"false" yaml:"log" toml:"log"`
	SentryLog bool   `envconfig:"DATABASE_SENTRY_LOG" default:"false" yaml:"sentry_log" toml:"sentry_log"`
	// Connections are additional named connections, file only.
	Connections []database.Config `ignored:"true" yaml:"connections" toml:"connections"`
}

// ConnectionConfigs returns the default connection built from URL followed
// by the named connections.
func (c DatabaseConfig) ConnectionConfigs() []database.Config {
	var out []database.Config
	if c.URL != "" {
		out = append(out, database.Config{
			Name:      "default",
			URL:       c.URL,
			System:    c.System,
			Log:       c.Log,
			SentryLog: c.SentryLog,
		})
	}
	return append(out, c.Connections...)
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
	Path    string `envconfig:"METRICS_PATH" default:"/metrics" yaml:"path" toml:"path"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"false" yaml:"enabled" toml:"enabled"`
}

// UpstreamConfig lists HTTP dependencies checked by /health.
type UpstreamConfig struct {
	URLs    []string      `envconfig:"UPSTREAM_URLS" yaml:"urls" toml:"urls"`
	Timeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"2s" yaml:"timeout" toml:"timeout"`
	// Retries above zero send checks through a retrying client.
	Retries int `envconfig:"UPSTREAM_RETRIES" default:"0" yaml:"retries" toml:"retries"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile lays a YAML or TOML file over cfg. Keys missing from the file keep
// their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Sentry: SentryConfig{
			Backend:              BackendSentry,
			Environment:          "production",
			TracesSampleRate:     1.0,
			Prefixes:             []string{ModulePath},
			InAppExclude:         []string{"/pkg/mod/", "/vendor/"},
			AuxiliaryConnections: []string{"debug_kit"},
			FlushTimeout:         2 * time.Second,
		},
		Database: DatabaseConfig{
			System: "postgresql",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           false,
		},
		Upstream: UpstreamConfig{
			Timeout: 2 * time.Second,
		},
	}
}
