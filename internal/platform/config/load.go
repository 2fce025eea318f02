package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix        = "APP_"
	defaultConfigDir = "configs"

	// envCredentials carries local-mode credentials so secrets can stay out
	// of YAML: "ACCESS:SECRET:ACCOUNT[:Display Name]", comma separated.
	envCredentials = "auth_credentials"
)

// listKeys are settings given as comma-separated lists in the environment.
var listKeys = map[string]string{
	"gateway_cors_origins": "gateway.cors_origins",
}

// Option configures the Load function.
type Option func(*loadOptions)

type loadOptions struct {
	configDir string
}

// WithConfigDir sets the directory holding base.yaml and the profile files.
// Defaults to "configs" under the working directory.
func WithConfigDir(dir string) Option {
	return func(o *loadOptions) {
		o.configDir = dir
	}
}

// Load builds the gateway configuration. Later layers win:
//
//  0. Built-in defaults
//  1. {configDir}/base.yaml
//  2. {configDir}/{profile}.yaml
//  3. APP_ environment variables
//
// Environment names are matched against the known keys, so underscores
// inside a key survive:
//
//	APP_SERVER_READ_TIMEOUT       -> server.read_timeout
//	APP_CLIENT_RETRY_MAX_ATTEMPTS -> client.retry.max_attempts
//	APP_GATEWAY_CORS_ORIGINS      -> gateway.cors_origins (comma separated)
//	APP_AUTH_CREDENTIALS          -> auth.credentials
func Load(profile string, opts ...Option) (*Config, error) {
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	o := &loadOptions{configDir: defaultConfigDir}
	for _, opt := range opts {
		opt(o)
	}

	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("setting default %s: %w", key, err)
		}
	}

	for _, name := range []string{"base", profile} {
		path := filepath.Join(o.configDir, name+".yaml")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	var credErr error
	envLookup := buildEnvLookup(k.Keys())
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

			if key == envCredentials {
				creds, err := parseCredentials(value)
				if err != nil {
					credErr = err
					return "", nil
				}
				return "auth.credentials", creds
			}
			if koanfKey, ok := listKeys[key]; ok {
				return koanfKey, splitList(value)
			}
			if koanfKey, ok := envLookup[key]; ok {
				return koanfKey, value
			}
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("parsing %s%s: %w", envPrefix, strings.ToUpper(envCredentials), credErr)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// validateProfile rejects names that could escape the config directory.
func validateProfile(profile string) error {
	if strings.TrimSpace(profile) == "" {
		return errors.New("profile must not be empty")
	}
	if strings.ContainsAny(profile, `/\`) {
		return fmt.Errorf("profile must not contain path separators, got %q", profile)
	}
	if strings.Contains(profile, "..") {
		return fmt.Errorf("profile must not contain path traversal, got %q", profile)
	}
	return nil
}

// buildEnvLookup maps "server_read_timeout" to "server.read_timeout" for
// every known key.
func buildEnvLookup(keys []string) map[string]string {
	lookup := make(map[string]string, len(keys))
	for _, key := range keys {
		lookup[strings.ReplaceAll(key, ".", "_")] = key
	}
	return lookup
}

func splitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseCredentials decodes the APP_AUTH_CREDENTIALS form into the shape
// auth.credentials has in YAML. Secrets must not contain ':'.
func parseCredentials(v string) ([]map[string]any, error) {
	var creds []map[string]any
	for i, entry := range splitList(v) {
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("entry %d: want ACCESS:SECRET:ACCOUNT", i)
		}
		c := map[string]any{
			"access_key": parts[0],
			"secret_key": parts[1],
			"account":    parts[2],
		}
		if len(parts) == 4 {
			c["display_name"] = parts[3]
		}
		creds = append(creds, c)
	}
	return creds, nil
}
