package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/limits"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/providers/anthropic"
	"mercator-hq/ganymede/pkg/providers/openai"
	"mercator-hq/ganymede/pkg/proxy"
	"mercator-hq/ganymede/pkg/runtime"
	"mercator-hq/ganymede/pkg/security/ca"
	"mercator-hq/ganymede/pkg/security/credentials"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede proxy",
	Long: `Start the intercepting proxy with the specified configuration.

The proxy listens on the configured address, terminates CONNECT tunnels
with certificates minted by its certificate authority, and dispatches
decrypted requests to the active provider plugin.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override listen address
  ganymede run --listen 127.0.0.1:9000

  # Validate config without starting the proxy
  ganymede run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the proxy")
}

// loadConfig loads the configuration named by the --config flag. The
// default "config.yaml" is allowed to be absent so the CLI works out of
// the box; an explicitly named file must exist.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "config.yaml" {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Options{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Ganymede v%s\n", Version)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authority, err := ca.New(cfg.CA.Dir, cfg.CA.CommonName)
	if err != nil {
		return fmt.Errorf("failed to initialize certificate authority: %w", err)
	}
	fmt.Printf("✓ Certificate authority ready (%s)\n", cfg.CA.Dir)

	m := metrics.New()

	tracer, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		SampleRatio: cfg.Telemetry.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	cache := credentials.NewCache(nil)
	sweeper := credentials.NewSweeper(cache, credentials.DefaultSweepSchedule)
	if err := sweeper.Start(ctx); err != nil {
		logger.Warn("credential sweeper failed to start", "error", err)
	} else {
		defer sweeper.Stop()
	}

	registry, closeUpstreams := buildRegistry(cfg, cache, logger)
	defer closeUpstreams()
	for id, regErr := range registry.Failures() {
		logger.Error("provider plugin failed to register", "provider", id, "error", regErr)
	}
	fmt.Printf("✓ Providers registered (%d plugins)\n", len(registry.IDs()))

	store, err := buildRuntimeStore(cfg, registry, logger)
	if err != nil {
		return err
	}
	if cfg.Runtime.Watch && cfg.Runtime.SettingsFile != "" {
		watcher := runtime.NewFileWatcher(cfg.Runtime.SettingsFile, store, registry.EnvOverrides())
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("settings watcher stopped", "error", err)
			}
		}()
	}

	sink, closeSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	if cfg.Admin.Enabled {
		admin := startAdmin(cfg.Admin.ListenAddress, m, authority, registry, logger)
		defer admin.Shutdown(context.Background())
		fmt.Printf("✓ Admin endpoint: http://%s/metrics\n", cfg.Admin.ListenAddress)
	}

	srv := proxy.NewServer(cfg.Proxy, authority, registry, store, sink, m, tracer, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(ctx)
	}()

	fmt.Printf("✓ Proxy listening on %s\n", cfg.Proxy.ListenAddress)
	fmt.Printf("✓ Active provider: %s\n", store.Load().ActiveProvider)
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()
		if err := srv.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
			return err
		}
		fmt.Println("✓ Proxy stopped")
		return nil
	}
}

// bootstrapSettings resolves the plugins' setting defaults and their
// environment overrides before the runtime store exists. Upstream
// construction needs base URLs and keys earlier than the settings file
// is loaded.
func bootstrapSettings() *runtime.Snapshot {
	snap := &runtime.Snapshot{Settings: map[string]string{}}
	var overrides []runtime.EnvOverride
	for _, d := range builtinDescriptors() {
		for k, v := range d.SettingDefaults() {
			snap.Settings[k] = v
		}
		for _, s := range d.Settings {
			if len(s.EnvVars) > 0 {
				overrides = append(overrides, runtime.EnvOverride{Key: s.Key, EnvVars: s.EnvVars})
			}
		}
	}
	return runtime.WithEnvOverrides(snap, overrides)
}

// buildRegistry constructs an Upstream per provider and registers the
// matching plugin. The config file's providers block wins; anything it
// leaves unset falls back to the plugin's setting defaults and env
// aliases. The returned func closes all upstreams.
func buildRegistry(cfg *config.Config, cache *credentials.Cache, logger *slog.Logger) (*providers.Registry, func()) {
	registry := providers.NewRegistry(logger)
	gates := limits.NewGates()
	boot := bootstrapSettings()

	var upstreams []*providers.Upstream
	newUpstream := func(id string, pc config.ProviderConfig) *providers.Upstream {
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = boot.Setting(id+".base_url", "")
		}
		token := pc.APIKey
		if token == "" {
			token = boot.Setting(id+".api_key", "")
		}
		wait := pc.WaitOnRateLimit
		if !wait {
			wait = boot.Setting(id+".wait_on_rate_limit", "") == "true"
		}

		opts := providers.UpstreamOptions{
			Provider:           id,
			BaseURL:            baseURL,
			Timeout:            pc.Timeout,
			MaxRetries:         pc.MaxRetries,
			Gate:               gates.For(id),
			MinRequestInterval: pc.MinRequestInterval,
			WaitOnRateLimit:    wait,
			Logger:             logger,
		}
		// The cache is wired only when a token source exists; providers
		// that authenticate per-request via headers (x-api-key) must not
		// fail bearer resolution.
		src := credentials.Source{Token: token, Credential: pc.Credential, RefreshURL: pc.RefreshURL}
		if src != (credentials.Source{}) {
			opts.Credentials = cache
			opts.Source = src
		}

		up := providers.NewUpstream(opts)
		upstreams = append(upstreams, up)
		return up
	}

	for id, pc := range cfg.Providers {
		switch id {
		case anthropic.ID:
			registry.Register(id, anthropic.New(newUpstream(id, pc)))
		case openai.ID:
			registry.Register(id, openai.New(newUpstream(id, pc)))
		default:
			logger.Warn("no plugin for configured provider, skipping", "provider", id)
		}
	}

	// Plugins for providers the config never mentions still register,
	// resolved entirely from setting defaults and environment, so the
	// active provider can be switched to them at runtime.
	if _, ok := registry.Get(anthropic.ID); !ok {
		registry.Register(anthropic.ID, anthropic.New(newUpstream(anthropic.ID, config.ProviderConfig{})))
	}
	if _, ok := registry.Get(openai.ID); !ok {
		registry.Register(openai.ID, openai.New(newUpstream(openai.ID, config.ProviderConfig{})))
	}

	return registry, func() {
		for _, up := range upstreams {
			up.Close()
		}
	}
}

// buildRuntimeStore assembles the initial settings snapshot: plugin
// defaults, then the settings file, then environment overrides.
func buildRuntimeStore(cfg *config.Config, registry *providers.Registry, logger *slog.Logger) (*runtime.Store, error) {
	snap := &runtime.Snapshot{
		ActiveProvider: cfg.Runtime.ActiveProvider,
		Settings:       registry.SettingDefaults(),
	}

	if cfg.Runtime.SettingsFile != "" {
		fileSnap, err := runtime.LoadSettingsFile(cfg.Runtime.SettingsFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Info("settings file absent, using defaults", "path", cfg.Runtime.SettingsFile)
			} else {
				return nil, err
			}
		} else {
			if fileSnap.ActiveProvider != "" {
				snap.ActiveProvider = fileSnap.ActiveProvider
			}
			for k, v := range fileSnap.Settings {
				snap.Settings[k] = v
			}
		}
	}

	snap = runtime.WithEnvOverrides(snap, registry.EnvOverrides())
	return runtime.NewStore(snap), nil
}

// buildSinks assembles the event sink chain from config. The returned
// func closes any sink holding resources.
func buildSinks(cfg *config.Config) (events.Sink, func(), error) {
	var sinks events.Multi
	closers := func() {}

	if cfg.Events.LogSink {
		sinks = append(sinks, events.NewLogSink())
	}
	if cfg.Events.SQLitePath != "" {
		sq, err := events.NewSQLiteSink(events.SQLiteSinkConfig{Path: cfg.Events.SQLitePath})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open event database: %w", err)
		}
		sinks = append(sinks, sq)
		closers = func() { sq.Close() }
	}
	return sinks, closers, nil
}

// startAdmin serves metrics, health, and the root certificate on the
// admin listener.
func startAdmin(addr string, m *metrics.Metrics, authority *ca.Authority, registry *providers.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ca.crt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-pem-file")
		w.Write(authority.RootCertificatePEM())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("admin listener stopped", "error", err)
		}
	}()
	return srv
}
