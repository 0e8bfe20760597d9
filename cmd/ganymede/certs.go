package main

import (
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage the interception certificate authority",
	Long: `Manage the certificate authority Ganymede uses to mint leaf
certificates for intercepted hosts.

The root key pair is generated on first use under the configured CA
directory and reused afterwards. The client must trust the root
certificate for interception to work.

Subcommands:
  show - Print the root certificate PEM to stdout
  info - Display root certificate details

Examples:
  # Print the root certificate for the client trust store
  ganymede certs show > ganymede-root.crt

  # Display root certificate details
  ganymede certs info`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}
