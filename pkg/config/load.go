package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. An empty path yields a default configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GANYMEDE_SECTION_FIELD (e.g., GANYMEDE_PROXY_LISTEN_ADDRESS) and
// always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Provider-level setting overrides (per setting descriptor)
// are handled separately by the runtime snapshot, not here.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("GANYMEDE_PROXY_LISTEN_ADDRESS"); val != "" {
		cfg.Proxy.ListenAddress = val
	}
	if val := os.Getenv("GANYMEDE_PROXY_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.ReadTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_PROXY_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.WriteTimeout = d
		}
	}

	if val := os.Getenv("GANYMEDE_CA_DIR"); val != "" {
		cfg.CA.Dir = val
	}

	if val := os.Getenv("GANYMEDE_ADMIN_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Admin.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_ADMIN_LISTEN_ADDRESS"); val != "" {
		cfg.Admin.ListenAddress = val
	}

	// Provider selection is environment-overridable.
	if val := os.Getenv("GANYMEDE_PROVIDER"); val != "" {
		cfg.Runtime.ActiveProvider = val
	}

	if val := os.Getenv("GANYMEDE_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
}
