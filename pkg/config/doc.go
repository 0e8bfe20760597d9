// Package config provides configuration loading, validation, and default
// management for Ganymede.
//
// Configuration is loaded from YAML files with support for environment
// variable overrides (GANYMEDE_* naming convention). The loading sequence is
// file -> defaults -> environment -> validation, so environment variables
// always win over persisted values.
//
// Per-provider setting overrides declared by plugin setting descriptors are
// not handled here; the runtime snapshot applies those (see pkg/runtime).
package config
