package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/security/ca"
)

var certsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display root certificate details",
	Long: `Display detailed information about the CA root certificate:
  - Subject common name
  - Serial number
  - Validity period (NotBefore, NotAfter)
  - CA directory on disk

Examples:
  # Display root certificate details
  ganymede certs info`,
	RunE: runCertsInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)
}

func runCertsInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	authority, err := ca.New(cfg.CA.Dir, cfg.CA.CommonName)
	if err != nil {
		return fmt.Errorf("failed to open certificate authority: %w", err)
	}

	cert := authority.RootCertificate()
	fmt.Println("Root Certificate")
	fmt.Println("================")
	fmt.Printf("Subject:       %s\n", cert.Subject.CommonName)
	fmt.Printf("Serial Number: %s\n", cert.SerialNumber)
	fmt.Printf("Not Before:    %s\n", cert.NotBefore.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Not After:     %s\n", cert.NotAfter.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("CA Directory:  %s\n", cfg.CA.Dir)
	return nil
}
