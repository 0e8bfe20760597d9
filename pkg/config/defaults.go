package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress      = "127.0.0.1:9000"
	DefaultAdminListenAddress = "127.0.0.1:9091"
	DefaultActiveProvider     = "anthropic"
	DefaultCACommonName       = "Ganymede Proxy CA"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultTracingEndpoint    = "localhost:4317"

	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultUpstreamTimeout = 120 * time.Second
	DefaultMaxRetries      = 2
)

// ApplyDefaults fills in default values for any unset configuration fields.
// It is called by LoadConfig before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.WriteTimeout == 0 {
		cfg.Proxy.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.CA.Dir == "" {
		cfg.CA.Dir = defaultCADir()
	}
	if cfg.CA.CommonName == "" {
		cfg.CA.CommonName = DefaultCACommonName
	}

	if cfg.Admin.ListenAddress == "" {
		cfg.Admin.Enabled = true
		cfg.Admin.ListenAddress = DefaultAdminListenAddress
	}

	if cfg.Runtime.ActiveProvider == "" {
		cfg.Runtime.ActiveProvider = DefaultActiveProvider
	}

	for name, pc := range cfg.Providers {
		if pc.Timeout == 0 {
			pc.Timeout = DefaultUpstreamTimeout
		}
		if pc.MaxRetries == 0 {
			pc.MaxRetries = DefaultMaxRetries
		}
		cfg.Providers[name] = pc
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.SampleRate == 0 {
		cfg.Telemetry.Tracing.SampleRate = 1.0
	}
}

// defaultCADir returns the per-user CA directory, falling back to a
// relative path when the home directory cannot be determined.
func defaultCADir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ganymede", "ca")
	}
	return filepath.Join(home, ".ganymede", "ca")
}
