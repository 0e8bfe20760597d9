package runtime

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSnapshot_Setting(t *testing.T) {
	snap := &Snapshot{Settings: map[string]string{"base_url": "https://example.com", "empty": ""}}

	if got := snap.Setting("base_url", "fallback"); got != "https://example.com" {
		t.Errorf("Expected configured value, got %q", got)
	}
	if got := snap.Setting("missing", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback for missing key, got %q", got)
	}
	if got := snap.Setting("empty", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback for empty value, got %q", got)
	}
}

func TestStore_AtomicReplace(t *testing.T) {
	store := NewStore(&Snapshot{ActiveProvider: "anthropic", Settings: map[string]string{"k": "v1"}})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers must always observe a complete snapshot: either the old
	// provider with the old setting, or the new with the new.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Load()
				v := snap.Settings["k"]
				switch snap.ActiveProvider {
				case "anthropic":
					if v != "v1" {
						t.Errorf("Torn snapshot: provider anthropic with setting %q", v)
						return
					}
				case "openai":
					if v != "v2" {
						t.Errorf("Torn snapshot: provider openai with setting %q", v)
						return
					}
				default:
					t.Errorf("Unexpected provider %q", snap.ActiveProvider)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			store.Replace(&Snapshot{ActiveProvider: "openai", Settings: map[string]string{"k": "v2"}})
		} else {
			store.Replace(&Snapshot{ActiveProvider: "anthropic", Settings: map[string]string{"k": "v1"}})
		}
	}
	close(stop)
	wg.Wait()
}

func TestWithEnvOverrides(t *testing.T) {
	snap := &Snapshot{
		ActiveProvider: "anthropic",
		Settings:       map[string]string{"api_key": "from-file", "base_url": "https://file.example"},
	}
	overrides := []EnvOverride{
		{Key: "api_key", EnvVars: []string{"GANYMEDE_TEST_API_KEY", "OPENAI_API_KEY_ALT"}},
		{Key: "base_url", EnvVars: []string{"GANYMEDE_TEST_BASE_URL"}},
	}

	t.Setenv("GANYMEDE_TEST_API_KEY", "from-env")
	t.Setenv(ProviderEnvVar, "openai")
	os.Unsetenv("GANYMEDE_TEST_BASE_URL")

	out := WithEnvOverrides(snap, overrides)

	if out.ActiveProvider != "openai" {
		t.Errorf("Expected provider override, got %q", out.ActiveProvider)
	}
	if out.Settings["api_key"] != "from-env" {
		t.Errorf("Expected env to win for api_key, got %q", out.Settings["api_key"])
	}
	if out.Settings["base_url"] != "https://file.example" {
		t.Errorf("Expected file value preserved for base_url, got %q", out.Settings["base_url"])
	}

	// Original snapshot must be untouched.
	if snap.Settings["api_key"] != "from-file" || snap.ActiveProvider != "anthropic" {
		t.Error("WithEnvOverrides mutated the input snapshot")
	}
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
active_provider: openai
settings:
  base_url: "https://api.openai.com/v1"
  model: gpt-4o
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}

	snap, err := LoadSettingsFile(path)
	if err != nil {
		t.Fatalf("LoadSettingsFile failed: %v", err)
	}
	if snap.ActiveProvider != "openai" {
		t.Errorf("Expected active provider openai, got %q", snap.ActiveProvider)
	}
	if snap.Settings["model"] != "gpt-4o" {
		t.Errorf("Expected model setting, got %q", snap.Settings["model"])
	}
}

func TestLoadSettingsFile_Missing(t *testing.T) {
	if _, err := LoadSettingsFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing settings file")
	}
}
