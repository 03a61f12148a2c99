package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the signing key",
}

var keyInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show provenance of the signing key",
	Args:  cobra.NoArgs,
	RunE:  runKeyInfo,
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyInfoCmd)
}

func runKeyInfo(cmd *cobra.Command, args []string) error {
	signer, err := loadSigner()
	if err != nil {
		return err
	}

	info := signer.KeyInfo()
	if jsonOut {
		return printJSON(info)
	}

	fmt.Printf("Key ID:      %s\n", info.KeyID)
	fmt.Printf("Fingerprint: %s\n", info.Fingerprint)
	fmt.Printf("Algorithm:   %s (%d bit)\n", info.Algorithm, info.BitSize)
	for _, uid := range info.UserIDs {
		fmt.Printf("User ID:     %s\n", uid)
	}
	if !info.CreationTime.IsZero() {
		fmt.Printf("Created:     %s\n", info.CreationTime.Format("2006-01-02 15:04:05 UTC"))
	}
	if info.Generated {
		fmt.Println("Note: this key was generated on this run and has no external trust chain")
	}
	return nil
}
