package config

import (
	"errors"
	"fmt"
)

// Validate checks all configuration values and returns aggregated errors.
func (c *Config) Validate() error {
	return errors.Join(
		c.Server.validate(),
		c.Log.validate(),
		c.Client.validate(),
		c.Telemetry.validate(),
		c.Gateway.validate(),
		c.Auth.validate(),
		c.Storage.validate(),
		c.Metadata.validate(),
	)
}

func (s *ServerConfig) validate() error {
	var errs []error

	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port))
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func (l *LogConfig) validate() error {
	var errs []error

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels.
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", l.Level))
	}

	switch l.Format {
	case "json", "text", "pretty":
		// Valid formats.
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: json, text, pretty; got %q", l.Format))
	}

	return errors.Join(errs...)
}

func (cl *ClientConfig) validate() error {
	var errs []error

	if cl.BaseURL == "" {
		errs = append(errs, errors.New("client.base_url must not be empty"))
	}
	if cl.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}
	if cl.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("client.retry.max_attempts must be >= 1, got %d", cl.Retry.MaxAttempts))
	}
	if cl.Retry.Multiplier <= 0 {
		errs = append(errs, fmt.Errorf("client.retry.multiplier must be positive, got %f", cl.Retry.Multiplier))
	}
	if cl.CircuitBreaker.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("client.circuit_breaker.max_failures must be >= 1, got %d",
			cl.CircuitBreaker.MaxFailures))
	}
	if cl.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("client.rate_limit.requests_per_second must be >= 0, got %f",
			cl.RateLimit.RequestsPerSecond))
	}
	if cl.RateLimit.RequestsPerSecond > 0 && cl.RateLimit.BurstSize < 1 {
		errs = append(errs, errors.New("client.rate_limit.burst_size must be >= 1 when rate limiting is enabled"))
	}

	return errors.Join(errs...)
}

func (t *TelemetryConfig) validate() error {
	if !t.Enabled {
		return nil
	}

	var errs []error

	switch t.Exporter {
	case "stdout", "otlp":
		// Valid exporters.
	default:
		errs = append(errs, fmt.Errorf("telemetry.exporter must be one of: stdout, otlp; got %q", t.Exporter))
	}

	if t.Exporter == "otlp" && t.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint must not be empty when exporter is otlp"))
	}

	return errors.Join(errs...)
}

func (g *GatewayConfig) validate() error {
	var errs []error

	if g.StallTimeout <= 0 {
		errs = append(errs, errors.New("gateway.stall_timeout must be positive"))
	}
	if g.ClientReadTimeout <= 0 {
		errs = append(errs, errors.New("gateway.client_read_timeout must be positive"))
	}
	if g.DrainTimeout <= 0 {
		errs = append(errs, errors.New("gateway.drain_timeout must be positive"))
	}
	if g.RetryAfter < 1 {
		errs = append(errs, fmt.Errorf("gateway.retry_after must be >= 1, got %d", g.RetryAfter))
	}
	if g.MaxBodySize < 1 {
		errs = append(errs, fmt.Errorf("gateway.max_body_size must be >= 1, got %d", g.MaxBodySize))
	}
	if g.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("gateway.requests_per_second must be >= 0, got %f", g.RequestsPerSecond))
	}
	if g.RequestsPerSecond > 0 && g.Burst < 1 {
		errs = append(errs, errors.New("gateway.burst must be >= 1 when admission control is enabled"))
	}

	return errors.Join(errs...)
}

func (a *AuthConfig) validate() error {
	var errs []error

	switch a.Mode {
	case AuthModeLocal:
		seen := make(map[string]bool, len(a.Credentials))
		for i, c := range a.Credentials {
			if c.AccessKey == "" || c.SecretKey == "" {
				errs = append(errs, fmt.Errorf("auth.credentials[%d] must set access_key and secret_key", i))
			}
			if c.Account == "" {
				errs = append(errs, fmt.Errorf("auth.credentials[%d].account must not be empty", i))
			}
			if seen[c.AccessKey] {
				errs = append(errs, fmt.Errorf("auth.credentials[%d] duplicates access key", i))
			}
			seen[c.AccessKey] = true
		}
	case AuthModeRemote:
		// The remote server is reached through the client section.
	default:
		errs = append(errs, fmt.Errorf("auth.mode must be one of: local, remote; got %q", a.Mode))
	}

	return errors.Join(errs...)
}

func (s *StorageConfig) validate() error {
	var errs []error

	switch s.Backend {
	case StorageLocal:
		if s.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir must not be empty for the local backend"))
		}
	case StorageMinio:
		if s.Minio.Endpoint == "" {
			errs = append(errs, errors.New("storage.minio.endpoint must not be empty"))
		}
		if s.Minio.Bucket == "" {
			errs = append(errs, errors.New("storage.minio.bucket must not be empty"))
		}
		if s.Minio.CircuitBreaker.MaxFailures < 1 {
			errs = append(errs, fmt.Errorf("storage.minio.circuit_breaker.max_failures must be >= 1, got %d",
				s.Minio.CircuitBreaker.MaxFailures))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of: local, minio; got %q", s.Backend))
	}

	return errors.Join(errs...)
}

func (m *MetadataConfig) validate() error {
	if m.Path == "" {
		return errors.New("metadata.path must not be empty")
	}
	return nil
}
