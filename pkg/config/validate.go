package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors and returns a descriptive
// error for the first problem found.
func Validate(cfg *Config) error {
	if err := validateListenAddress(cfg.Proxy.ListenAddress, "proxy.listen_address"); err != nil {
		return err
	}
	if cfg.Admin.Enabled {
		if err := validateListenAddress(cfg.Admin.ListenAddress, "admin.listen_address"); err != nil {
			return err
		}
	}

	if cfg.Proxy.ReadTimeout < 0 {
		return fmt.Errorf("proxy.read_timeout must not be negative")
	}
	if cfg.Proxy.WriteTimeout < 0 {
		return fmt.Errorf("proxy.write_timeout must not be negative")
	}

	level := strings.ToLower(cfg.Telemetry.Logging.Level)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level: unknown level %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format: unknown format %q", cfg.Telemetry.Logging.Format)
	}

	if sr := cfg.Telemetry.Tracing.SampleRate; sr < 0 || sr > 1 {
		return fmt.Errorf("telemetry.tracing.sample_rate must be in [0,1], got %v", sr)
	}

	for name, pc := range cfg.Providers {
		if pc.BaseURL != "" {
			u, err := url.Parse(pc.BaseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("providers.%s.base_url: invalid URL %q", name, pc.BaseURL)
			}
		}
		if pc.Credential != "" && pc.RefreshURL == "" {
			return fmt.Errorf("providers.%s: credential set without refresh_url", name)
		}
		if pc.MinRequestInterval < 0 {
			return fmt.Errorf("providers.%s.min_request_interval must not be negative", name)
		}
	}

	return nil
}

func validateListenAddress(addr, field string) error {
	if addr == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: invalid address %q: %w", field, addr, err)
	}
	return nil
}
