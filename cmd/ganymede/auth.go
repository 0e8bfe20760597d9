package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/security/credentials"
)

var authFlags struct {
	force bool
}

var authCmd = &cobra.Command{
	Use:   "auth [provider]",
	Short: "Run a provider's authentication flow",
	Long: `Run the interactive authentication flow of a provider plugin.

Providers that authenticate with a static API key do not implement a
flow; configure their key in the config file or environment instead.

Examples:
  # Authenticate against the active provider
  ganymede auth

  # Authenticate against a specific provider, discarding cached state
  ganymede auth openai --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)

	authCmd.Flags().BoolVar(&authFlags.force, "force", false, "discard cached credentials and re-authenticate")
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	id := cfg.Runtime.ActiveProvider
	if len(args) == 1 {
		id = args[0]
	}

	registry, closeUpstreams := buildRegistry(cfg, credentials.NewCache(nil), slog.Default())
	defer closeUpstreams()

	plugin, ok := registry.Get(id)
	if !ok {
		return fmt.Errorf("unknown provider %q", id)
	}

	flow, ok := plugin.(providers.AuthFlow)
	if !ok {
		return fmt.Errorf("provider %q does not use an authentication flow; configure its API key instead", id)
	}

	if err := flow.RunAuthFlow(authFlags.force); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Printf("✓ Authenticated with %s\n", id)
	return nil
}
