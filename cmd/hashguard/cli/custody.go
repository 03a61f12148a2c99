package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var custodyDetails []string

var custodyCmd = &cobra.Command{
	Use:   "custody",
	Short: "Record and inspect chain-of-custody entries",
}

var custodyLogCmd = &cobra.Command{
	Use:   "log <evidence-id> <action> <actor>",
	Short: "Append a custody entry",
	Long: `Append an entry to an evidence record's custody chain.

The action is normalized to upper-case; unrecognized actions are accepted.
Entries are append-only and can never be changed or removed.

Example:
  hashguard custody log ev_1a2b3c4d5e6f7a8b TRANSFER bob --details reason=court`,
	Args: cobra.ExactArgs(3),
	RunE: runCustodyLog,
}

var custodyChainCmd = &cobra.Command{
	Use:   "chain <evidence-id>",
	Short: "Show the full custody chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustodyChain,
}

var custodyValidateCmd = &cobra.Command{
	Use:   "validate <evidence-id>",
	Short: "Validate the structure of a custody chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustodyValidate,
}

var custodyReportCmd = &cobra.Command{
	Use:   "report <evidence-id>",
	Short: "Produce a full custody report",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustodyReport,
}

func init() {
	rootCmd.AddCommand(custodyCmd)
	custodyCmd.AddCommand(custodyLogCmd)
	custodyCmd.AddCommand(custodyChainCmd)
	custodyCmd.AddCommand(custodyValidateCmd)
	custodyCmd.AddCommand(custodyReportCmd)
	custodyLogCmd.Flags().StringArrayVar(&custodyDetails, "details", nil, "details as key=value (repeatable)")
}

func runCustodyLog(cmd *cobra.Command, args []string) error {
	details, err := parseKeyValues(custodyDetails)
	if err != nil {
		return err
	}

	store, ledger, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := ledger.Append(cmd.Context(), args[0], args[1], args[2], details)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(entry)
	}
	fmt.Printf("Custody entry recorded: %s\n", entry.ID)
	fmt.Printf("  %s by %s at %s\n", entry.Action, entry.Actor, entry.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	return nil
}

func runCustodyChain(cmd *cobra.Command, args []string) error {
	store, ledger, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	chain, err := ledger.ChainFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(chain)
	}

	fmt.Printf("Custody chain for %s: %d entries\n\n", args[0], len(chain))
	for i, e := range chain {
		fmt.Printf("%3d. %s  %-16s %s\n", i+1, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Actor)
	}
	return nil
}

func runCustodyValidate(cmd *cobra.Command, args []string) error {
	store, ledger, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := ledger.Validate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Printf("Custody validation for %s\n", args[0])
		fmt.Printf("  Entries:         %d\n", result.TotalEntries)
		fmt.Printf("  Integrity score: %d\n", result.IntegrityScore)
		if result.IsValid {
			fmt.Println("  [ok] Chain is structurally valid")
		} else {
			fmt.Println("  [FAIL] Chain has issues:")
			for _, issue := range result.Issues {
				fmt.Printf("    - %s\n", issue)
			}
		}
		for _, r := range result.Recommendations {
			fmt.Printf("  hint: %s\n", r)
		}
	}

	if !result.IsValid {
		return fmt.Errorf("custody chain invalid")
	}
	return nil
}

func runCustodyReport(cmd *cobra.Command, args []string) error {
	store, ledger, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := ledger.BuildReport(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(report)
	}

	fmt.Printf("Custody report for %s (%s)\n", report.Evidence.ID, report.Evidence.Filename)
	fmt.Println("===============================================================")
	fmt.Printf("Digest:  %s\n", report.Evidence.Digest)
	fmt.Printf("Actions: %d (%s)\n", report.Summary.TotalActions, strings.Join(report.Summary.Actions, ", "))
	fmt.Printf("Actors:  %s\n", strings.Join(report.Summary.Actors, ", "))
	if report.Summary.TotalActions > 0 {
		fmt.Printf("Window:  %s to %s\n",
			report.Summary.FirstAction.Format("2006-01-02 15:04:05"),
			report.Summary.LastAction.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	for i, e := range report.Chain {
		fmt.Printf("%3d. %s  %-16s %s\n", i+1, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Actor)
		for k, v := range e.Details {
			fmt.Printf("       %s=%v\n", k, v)
		}
	}
	return nil
}
