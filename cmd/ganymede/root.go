package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - TLS-intercepting proxy for LLM coding agents",
	Long: `Ganymede is a TLS-intercepting proxy between an LLM coding agent and
upstream LLM APIs.

It terminates CONNECT tunnels with certificates minted by its own
certificate authority, decrypts the agent's traffic, and dispatches each
request to the active provider plugin:
  - Anthropic passthrough with streaming relay
  - OpenAI-compatible upstreams behind the Anthropic Messages API
  - Runtime provider switching via settings file or environment
  - Event capture to structured logs and sqlite`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
