package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/providers/anthropic"
	"mercator-hq/ganymede/pkg/providers/openai"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List available provider plugins",
	Long: `List the built-in provider plugins with their setting keys,
defaults, and environment variable overrides.

The active provider is selected by runtime.active_provider in the
configuration, the settings file, or the GANYMEDE_PROVIDER environment
variable.

Examples:
  # List providers and their settings
  ganymede providers`,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// builtinDescriptors returns the descriptors of every compiled-in plugin.
// Descriptors are static, so no upstream wiring is needed here.
func builtinDescriptors() []providers.Descriptor {
	return []providers.Descriptor{
		anthropic.New(nil).Descriptor(),
		openai.New(nil).Descriptor(),
	}
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for _, d := range builtinDescriptors() {
		marker := " "
		if d.ID == cfg.Runtime.ActiveProvider {
			marker = "*"
		}
		fmt.Printf("%s %s (%s)\n", marker, d.ID, d.Name)
		for _, s := range d.Settings {
			line := fmt.Sprintf("    %-28s %s", s.Key, s.Kind)
			if s.Default != "" && !s.Secret {
				line += fmt.Sprintf("  default=%s", s.Default)
			}
			if len(s.EnvVars) > 0 {
				line += fmt.Sprintf("  env=%v", s.EnvVars)
			}
			fmt.Println(line)
		}
	}
	fmt.Println("\n* = active provider")
	return nil
}
