package runtime

import (
	"maps"
	"os"
	"sync/atomic"
)

// Snapshot is an immutable view of the proxy's runtime configuration: the
// active provider id plus a flat settings map. A new snapshot fully
// replaces the old one; readers always see a complete, consistent value.
//
// Snapshots must never be mutated after publication. Use Clone to derive a
// modified copy.
type Snapshot struct {
	// ActiveProvider is the provider id requests are dispatched to.
	ActiveProvider string

	// Settings maps setting keys (as declared by provider setting
	// descriptors) to their current values.
	Settings map[string]string
}

// Setting returns the value for key, or fallback when the key is unset
// or empty.
func (s *Snapshot) Setting(key, fallback string) string {
	if s == nil {
		return fallback
	}
	if v, ok := s.Settings[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Clone returns a deep copy safe to mutate before publishing.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{ActiveProvider: s.ActiveProvider, Settings: make(map[string]string, len(s.Settings))}
	maps.Copy(out.Settings, s.Settings)
	return out
}

// Store publishes the current Snapshot. Replacement is a single atomic
// pointer swap, so concurrent readers never observe a partially updated
// snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store publishing the given initial snapshot.
func NewStore(initial *Snapshot) *Store {
	if initial == nil {
		initial = &Snapshot{Settings: map[string]string{}}
	}
	if initial.Settings == nil {
		initial.Settings = map[string]string{}
	}
	st := &Store{}
	st.current.Store(initial)
	return st
}

// Load returns the current snapshot. The returned value must be treated
// as read-only.
func (st *Store) Load() *Snapshot {
	return st.current.Load()
}

// Replace atomically publishes a new snapshot.
func (st *Store) Replace(s *Snapshot) {
	if s.Settings == nil {
		s.Settings = map[string]string{}
	}
	st.current.Store(s)
}

// EnvOverride declares that a setting key may be overridden by one of the
// listed environment variables, first match wins. Provider plugins derive
// these from their setting descriptors.
type EnvOverride struct {
	Key     string
	EnvVars []string
}

// ProviderEnvVar overrides the active provider id when set.
const ProviderEnvVar = "GANYMEDE_PROVIDER"

// WithEnvOverrides returns a copy of snap with environment variables
// applied on top of its settings. Environment values always win over
// persisted ones; unset variables leave the setting untouched.
func WithEnvOverrides(snap *Snapshot, overrides []EnvOverride) *Snapshot {
	out := snap.Clone()

	if v := os.Getenv(ProviderEnvVar); v != "" {
		out.ActiveProvider = v
	}

	for _, ov := range overrides {
		for _, env := range ov.EnvVars {
			if v := os.Getenv(env); v != "" {
				out.Settings[ov.Key] = v
				break
			}
		}
	}

	return out
}
