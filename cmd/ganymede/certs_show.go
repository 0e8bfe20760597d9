package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/security/ca"
)

var certsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the root certificate PEM",
	Long: `Print the CA root certificate in PEM format to stdout.

The root pair is generated on first use, so running this command on a
fresh installation creates it.

Examples:
  # Save the root certificate for the client trust store
  ganymede certs show > ganymede-root.crt`,
	RunE: runCertsShow,
}

func init() {
	certsCmd.AddCommand(certsShowCmd)
}

func runCertsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	authority, err := ca.New(cfg.CA.Dir, cfg.CA.CommonName)
	if err != nil {
		return fmt.Errorf("failed to open certificate authority: %w", err)
	}

	_, err = os.Stdout.Write(authority.RootCertificatePEM())
	return err
}
