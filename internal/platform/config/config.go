// Package config provides configuration loading and validation for the gateway.
// Configuration is loaded from YAML files with environment variable overrides
// using a layered system: defaults -> base.yaml -> {profile}.yaml -> env vars.
package config

import "time"

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Client    ClientConfig    `koanf:"client"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Auth      AuthConfig      `koanf:"auth"`
	Storage   StorageConfig   `koanf:"storage"`
	Metadata  MetadataConfig  `koanf:"metadata"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ClientConfig holds settings for the HTTP client used to reach the remote
// auth server.
type ClientConfig struct {
	BaseURL        string               `koanf:"base_url"`
	Timeout        time.Duration        `koanf:"timeout"`
	Retry          RetryConfig          `koanf:"retry"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	RateLimit      RateLimitConfig      `koanf:"rate_limit"`
}

// RateLimitConfig bounds outbound request rate with a token bucket.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	BurstSize         int     `koanf:"burst_size"`
}

// RetryConfig holds retry policy settings with exponential backoff.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"`
	Timeout       time.Duration `koanf:"timeout"`
	HalfOpenLimit int           `koanf:"half_open_limit"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Exporter    string `koanf:"exporter"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// GatewayConfig holds request-engine settings.
type GatewayConfig struct {
	Region            string        `koanf:"region"`
	AuthEnabled       bool          `koanf:"auth_enabled"`
	StallTimeout      time.Duration `koanf:"stall_timeout"`
	ClientReadTimeout time.Duration `koanf:"client_read_timeout"`
	DrainTimeout      time.Duration `koanf:"drain_timeout"`
	RetryAfter        int           `koanf:"retry_after"`
	MaxBodySize       int64         `koanf:"max_body_size"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// Auth modes.
const (
	AuthModeLocal  = "local"
	AuthModeRemote = "remote"
)

// AuthConfig selects how requests are authenticated and authorized.
// Credentials are only consulted in local mode.
type AuthConfig struct {
	Mode        string       `koanf:"mode"`
	Credentials []Credential `koanf:"credentials"`
}

// Credential is a static access key pair bound to an account.
type Credential struct {
	AccessKey   string `koanf:"access_key"`
	SecretKey   string `koanf:"secret_key"`
	Account     string `koanf:"account"`
	DisplayName string `koanf:"display_name"`
}

// Storage backends.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// StorageConfig selects the object data backend.
type StorageConfig struct {
	Backend string      `koanf:"backend"`
	DataDir string      `koanf:"data_dir"`
	Minio   MinioConfig `koanf:"minio"`
}

// MinioConfig holds settings for an S3-compatible backend cluster.
type MinioConfig struct {
	Endpoint       string               `koanf:"endpoint"`
	AccessKey      string               `koanf:"access_key"`
	SecretKey      string               `koanf:"secret_key"`
	Bucket         string               `koanf:"bucket"`
	UseSSL         bool                 `koanf:"use_ssl"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// MetadataConfig holds the SQLite metadata store settings.
type MetadataConfig struct {
	Path        string        `koanf:"path"`
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}
