package providers

import "fmt"

// Setting kinds a provider descriptor may declare.
const (
	SettingText   = "text"
	SettingBool   = "bool"
	SettingSelect = "select"
)

// SettingDescriptor declares one configurable setting of a provider. The
// same descriptor drives the settings schema and the environment-override
// pass: any of the listed EnvVars overrides the persisted value.
type SettingDescriptor struct {
	// Key is the settings-map key, unique within the provider.
	Key string

	// Label is the human-readable name shown in configuration listings.
	Label string

	// Kind is one of text, bool, or select.
	Kind string

	// Default is used when neither settings file nor environment set
	// the key.
	Default string

	// Options enumerates the legal values of a select setting.
	Options []string

	// Secret marks values that must not appear in logs or listings.
	Secret bool

	// EnvVars lists environment variables that override this setting,
	// first set one wins.
	EnvVars []string
}

// Descriptor is the static metadata a plugin declares at registration.
type Descriptor struct {
	// ID is the globally-unique provider id (e.g. "anthropic").
	ID string

	// Name is the display name.
	Name string

	// Settings declares the provider's configurable settings.
	Settings []SettingDescriptor
}

// Validate checks the descriptor is well formed: non-empty id and name,
// non-empty unique setting keys, known setting kinds, and options present
// exactly on select settings.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("provider descriptor has empty id")
	}
	if d.Name == "" {
		return fmt.Errorf("provider %q descriptor has empty display name", d.ID)
	}

	seen := make(map[string]bool, len(d.Settings))
	for _, s := range d.Settings {
		if s.Key == "" {
			return fmt.Errorf("provider %q has a setting with an empty key", d.ID)
		}
		if seen[s.Key] {
			return fmt.Errorf("provider %q declares setting %q twice", d.ID, s.Key)
		}
		seen[s.Key] = true

		switch s.Kind {
		case SettingText, SettingBool:
			if len(s.Options) > 0 {
				return fmt.Errorf("provider %q setting %q is %s but declares options", d.ID, s.Key, s.Kind)
			}
		case SettingSelect:
			if len(s.Options) == 0 {
				return fmt.Errorf("provider %q setting %q is select but declares no options", d.ID, s.Key)
			}
		default:
			return fmt.Errorf("provider %q setting %q has unknown kind %q", d.ID, s.Key, s.Kind)
		}
	}

	return nil
}

// SettingDefaults returns the descriptor's default settings map.
func (d Descriptor) SettingDefaults() map[string]string {
	out := make(map[string]string, len(d.Settings))
	for _, s := range d.Settings {
		out[s.Key] = s.Default
	}
	return out
}
