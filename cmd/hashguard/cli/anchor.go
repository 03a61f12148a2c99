package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hashguard/hashguard/internal/anchor"
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Manage timestamp anchor proofs",
}

var anchorCreateCmd = &cobra.Command{
	Use:   "create <digest>",
	Short: "Submit a digest to the timestamp calendar",
	Long: `Submit a digest to the configured timestamp calendar and write the proof
file. Without a configured calendar a local timestamp is produced instead;
local timestamps prove nothing to third parties.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnchorCreate,
}

var anchorVerifyCmd = &cobra.Command{
	Use:   "verify <digest> <proof-file>",
	Short: "Verify an anchor proof against a digest",
	Args:  cobra.ExactArgs(2),
	RunE:  runAnchorVerify,
}

var anchorUpgradeCmd = &cobra.Command{
	Use:   "upgrade <proof-file>",
	Short: "Try to upgrade a pending proof to a confirmed one",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnchorUpgrade,
}

var anchorInfoCmd = &cobra.Command{
	Use:   "info <proof-file>",
	Short: "Show basic information about a proof file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnchorInfo,
}

func init() {
	rootCmd.AddCommand(anchorCmd)
	anchorCmd.AddCommand(anchorCreateCmd)
	anchorCmd.AddCommand(anchorVerifyCmd)
	anchorCmd.AddCommand(anchorUpgradeCmd)
	anchorCmd.AddCommand(anchorInfoCmd)
}

func runAnchorCreate(cmd *cobra.Command, args []string) error {
	d := args[0]

	ref, err := anchorClient().Create(cmd.Context(), d)
	if err != nil {
		if errors.Is(err, anchor.ErrServiceUnavailable) {
			ts := anchor.CreateLocal(d)
			if jsonOut {
				return printJSON(ts)
			}
			fmt.Println("No anchor calendar configured; produced a local timestamp only.")
			fmt.Printf("  Digest:    %s\n", ts.Digest)
			fmt.Printf("  Timestamp: %s\n", ts.Timestamp.Format("2006-01-02 15:04:05 UTC"))
			fmt.Printf("  Source:    %s\n", ts.Source)
			return nil
		}
		return err
	}

	if jsonOut {
		return printJSON(map[string]string{"digest": d, "proof_file": ref})
	}
	fmt.Printf("Anchor proof created: %s\n", ref)
	return nil
}

func runAnchorVerify(cmd *cobra.Command, args []string) error {
	result := anchorClient().Verify(cmd.Context(), args[0], args[1])

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else if result.IsValid {
		fmt.Printf("[ok] Timestamp valid: anchored at %s (height %d)\n",
			result.AnchorTime.Format("2006-01-02 15:04:05 UTC"), result.AnchorHeight)
	} else {
		fmt.Printf("[FAIL] Timestamp not valid: %s\n", result.Error)
	}

	if !result.IsValid {
		return fmt.Errorf("anchor verification failed")
	}
	return nil
}

func runAnchorUpgrade(cmd *cobra.Command, args []string) error {
	upgraded, err := anchorClient().Upgrade(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]bool{"upgraded": upgraded})
	}
	if upgraded {
		fmt.Println("Proof upgraded: the calendar has confirmed the digest.")
	} else {
		fmt.Println("Proof unchanged: already confirmed or still pending.")
	}
	return nil
}

func runAnchorInfo(cmd *cobra.Command, args []string) error {
	info, err := anchorClient().Info(args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(info)
	}
	fmt.Printf("Digest:    %s\n", info.Digest)
	if info.Pending {
		fmt.Println("Status:    pending")
	} else {
		fmt.Println("Status:    confirmed")
	}
	fmt.Printf("Calendars: %s\n", strings.Join(info.Calendars, ", "))
	fmt.Printf("Size:      %d bytes\n", info.Size)
	return nil
}
