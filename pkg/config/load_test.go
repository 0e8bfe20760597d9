package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Proxy.ListenAddress != DefaultListenAddress {
		t.Errorf("Expected default listen address %q, got %q", DefaultListenAddress, cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ReadTimeout != DefaultReadTimeout {
		t.Errorf("Expected default read timeout %v, got %v", DefaultReadTimeout, cfg.Proxy.ReadTimeout)
	}
	if cfg.Runtime.ActiveProvider != DefaultActiveProvider {
		t.Errorf("Expected default provider %q, got %q", DefaultActiveProvider, cfg.Runtime.ActiveProvider)
	}
	if cfg.CA.CommonName != DefaultCACommonName {
		t.Errorf("Expected default CA common name, got %q", cfg.CA.CommonName)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  listen_address: "0.0.0.0:9443"
  read_timeout: 10s
runtime:
  active_provider: openai
providers:
  openai:
    base_url: "https://api.openai.com/v1"
    api_key: "sk-test"
    min_request_interval: 5s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:9443" {
		t.Errorf("Expected listen address from file, got %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ReadTimeout != 10*time.Second {
		t.Errorf("Expected 10s read timeout, got %v", cfg.Proxy.ReadTimeout)
	}
	if cfg.Runtime.ActiveProvider != "openai" {
		t.Errorf("Expected active provider openai, got %q", cfg.Runtime.ActiveProvider)
	}

	pc, ok := cfg.Providers["openai"]
	if !ok {
		t.Fatal("Expected openai provider config")
	}
	if pc.MinRequestInterval != 5*time.Second {
		t.Errorf("Expected 5s min interval, got %v", pc.MinRequestInterval)
	}
	// Defaults applied to provider entries loaded from file.
	if pc.Timeout != DefaultUpstreamTimeout {
		t.Errorf("Expected default upstream timeout, got %v", pc.Timeout)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "proxy: [not a map")
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
runtime:
  active_provider: anthropic
`)

	t.Setenv("GANYMEDE_PROVIDER", "openai")
	t.Setenv("GANYMEDE_PROXY_LISTEN_ADDRESS", "127.0.0.1:19000")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Runtime.ActiveProvider != "openai" {
		t.Errorf("Expected env override to win, got %q", cfg.Runtime.ActiveProvider)
	}
	if cfg.Proxy.ListenAddress != "127.0.0.1:19000" {
		t.Errorf("Expected env listen address, got %q", cfg.Proxy.ListenAddress)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen address", func(c *Config) { c.Proxy.ListenAddress = "" }},
		{"bad listen address", func(c *Config) { c.Proxy.ListenAddress = "no-port" }},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }},
		{"bad sample rate", func(c *Config) { c.Telemetry.Tracing.SampleRate = 2.0 }},
		{"credential without refresh url", func(c *Config) {
			c.Providers = map[string]ProviderConfig{
				"openai": {BaseURL: "https://api.openai.com/v1", Credential: "rt-abc"},
			}
		}},
		{"bad base url", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"openai": {BaseURL: "://bad"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
