package config

import "time"

// Config is the root configuration structure for Ganymede.
// It contains all configuration sections for the intercepting proxy,
// the certificate authority, upstream providers, event sinks, and telemetry.
type Config struct {
	// Proxy contains the intercepting proxy listener configuration.
	Proxy ProxyConfig `yaml:"proxy"`

	// CA contains certificate authority configuration.
	CA CAConfig `yaml:"ca"`

	// Admin contains the admin/metrics listener configuration.
	Admin AdminConfig `yaml:"admin"`

	// Runtime contains runtime settings snapshot configuration
	// (active provider, settings file, watch mode).
	Runtime RuntimeConfig `yaml:"runtime"`

	// Providers contains per-provider upstream configuration.
	// Keys are provider ids (e.g., "anthropic", "openai").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Events contains event sink configuration.
	Events EventsConfig `yaml:"events"`

	// Telemetry contains observability configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the intercepting proxy listener.
type ProxyConfig struct {
	// ListenAddress is the address and port for the proxy to listen on.
	// Format: "host:port". Default: "127.0.0.1:9000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request from
	// a client connection. Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a non-streaming
	// response. Streaming responses are exempt. Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// requests during graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CAConfig contains configuration for the certificate authority.
type CAConfig struct {
	// Dir is the directory holding the root key and certificate.
	// The root pair is generated on first use and reloaded thereafter.
	// Default: "~/.ganymede/ca" expanded at load time.
	Dir string `yaml:"dir"`

	// CommonName is the CN of the generated root certificate.
	// Default: "Ganymede Proxy CA"
	CommonName string `yaml:"common_name"`
}

// AdminConfig contains configuration for the admin/metrics listener.
type AdminConfig struct {
	// Enabled controls whether the admin listener is started.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address for the metrics endpoint.
	// Default: "127.0.0.1:9091"
	ListenAddress string `yaml:"listen_address"`
}

// RuntimeConfig contains configuration for the runtime settings snapshot.
type RuntimeConfig struct {
	// ActiveProvider is the provider id requests are dispatched to.
	// Overridable with GANYMEDE_PROVIDER. Default: "anthropic"
	ActiveProvider string `yaml:"active_provider"`

	// SettingsFile is an optional YAML file holding provider settings.
	// When set and Watch is true, changes are picked up live.
	SettingsFile string `yaml:"settings_file"`

	// Watch enables live reloading of the settings file. Default: false
	Watch bool `yaml:"watch"`
}

// ProviderConfig contains configuration for a single upstream provider.
type ProviderConfig struct {
	// BaseURL is the provider API base URL.
	// Example: "https://api.openai.com/v1"
	BaseURL string `yaml:"base_url"`

	// APIKey is an explicit bearer token. When set it always wins and
	// no credential refresh is attempted.
	APIKey string `yaml:"api_key"`

	// Credential is a long-lived credential exchanged at RefreshURL
	// for a short-lived bearer token.
	Credential string `yaml:"credential"`

	// RefreshURL is the token refresh endpoint used with Credential.
	RefreshURL string `yaml:"refresh_url"`

	// Timeout is the upstream request timeout. Default: 120s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the maximum number of retry attempts for transient
	// upstream failures. Default: 2
	MaxRetries int `yaml:"max_retries"`

	// MinRequestInterval is the minimum interval between upstream
	// requests for this provider family. Zero disables gating.
	MinRequestInterval time.Duration `yaml:"min_request_interval"`

	// WaitOnRateLimit makes a gated request sleep out the remaining
	// interval instead of being refused. Default: true
	WaitOnRateLimit bool `yaml:"wait_on_rate_limit"`
}

// EventsConfig contains configuration for proxy event sinks.
type EventsConfig struct {
	// LogSink mirrors events into the structured log. Default: true
	LogSink bool `yaml:"log_sink"`

	// SQLitePath, when non-empty, enables the sqlite event sink at the
	// given database path.
	SQLitePath string `yaml:"sqlite_path"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json", "text"). Default: "text"
	Format string `yaml:"format"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether traces are exported. Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// SampleRate is the trace sampling ratio in [0,1]. Default: 1.0
	SampleRate float64 `yaml:"sample_rate"`
}
