package providers

import (
	"fmt"
	"log/slog"
	"sort"

	"mercator-hq/ganymede/pkg/runtime"
)

// Registry holds the provider plugins available for dispatch. Plugins are
// registered explicitly at startup; a plugin that fails validation is
// recorded in the error map and skipped, it never prevents other plugins
// from registering.
type Registry struct {
	plugins map[string]Plugin
	order   []string

	// failures maps the registering package name to its validation
	// error.
	failures map[string]error

	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		plugins:  make(map[string]Plugin),
		failures: make(map[string]error),
		logger:   logger.With("component", "providers"),
	}
}

// Register validates and adds one plugin. pkg names the registering
// package for the error map. Registration failures are recorded and
// logged, not returned; startup continues with the remaining plugins.
func (r *Registry) Register(pkg string, p Plugin) {
	if p == nil {
		r.fail(pkg, fmt.Errorf("package %q registered a nil plugin", pkg))
		return
	}

	desc := p.Descriptor()
	if err := desc.Validate(); err != nil {
		r.fail(pkg, err)
		return
	}
	if _, exists := r.plugins[desc.ID]; exists {
		r.fail(pkg, fmt.Errorf("provider id %q already registered", desc.ID))
		return
	}

	r.plugins[desc.ID] = p
	r.order = append(r.order, desc.ID)
	r.logger.Debug("provider registered", "provider", desc.ID, "settings", len(desc.Settings))
}

func (r *Registry) fail(pkg string, err error) {
	r.failures[pkg] = err
	r.logger.Warn("provider registration failed", "package", pkg, "error", err)
}

// Get returns the plugin registered under the given provider id.
func (r *Registry) Get(id string) (Plugin, bool) {
	p, ok := r.plugins[id]
	return p, ok
}

// IDs returns the registered provider ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Failures returns the per-package registration errors, keyed by package
// name.
func (r *Registry) Failures() map[string]error {
	out := make(map[string]error, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}

// EnvOverrides collects the environment-override declarations of every
// registered plugin's setting descriptors, in a stable order.
func (r *Registry) EnvOverrides() []runtime.EnvOverride {
	ids := r.IDs()
	sort.Strings(ids)

	var out []runtime.EnvOverride
	for _, id := range ids {
		for _, s := range r.plugins[id].Descriptor().Settings {
			if len(s.EnvVars) == 0 {
				continue
			}
			out = append(out, runtime.EnvOverride{Key: s.Key, EnvVars: s.EnvVars})
		}
	}
	return out
}

// SettingDefaults merges the default settings of every registered plugin.
func (r *Registry) SettingDefaults() map[string]string {
	out := make(map[string]string)
	for _, id := range r.order {
		for k, v := range r.plugins[id].Descriptor().SettingDefaults() {
			out[k] = v
		}
	}
	return out
}
