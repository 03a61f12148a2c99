package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashguard/hashguard/internal/verify"
)

var (
	verifyQuick bool
	verifyFile  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [evidence-id]",
	Short: "Verify the integrity of an evidence record",
	Long: `Verify the integrity of an evidence record.

The complete verification checks the content digest, the detached signature
and timestamp anchor where present, and the custody chain, and combines them
into one verdict with a confidence score. With --quick only the digest is
rechecked. With --file an arbitrary file is checked against the evidence
store by its digest instead.

Examples:
  hashguard verify ev_1a2b3c4d5e6f7a8b
  hashguard verify ev_1a2b3c4d5e6f7a8b --quick
  hashguard verify --file ./copy-of-evidence.dd`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyQuick, "quick", false, "hash check only")
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "check a file against the store by digest")
}

func runVerify(cmd *cobra.Command, args []string) error {
	if verifyFile == "" && len(args) == 0 {
		return fmt.Errorf("an evidence id or --file is required")
	}

	store, ledger, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	engine := newEngine(store, ledger)
	ctx := cmd.Context()

	if verifyFile != "" {
		result, err := engine.CheckFile(ctx, verifyFile)
		if err != nil {
			return err
		}
		return printQuickResult(result)
	}

	if verifyQuick {
		result, err := engine.Quick(ctx, args[0])
		if err != nil {
			return err
		}
		return printQuickResult(result)
	}

	verdict, err := engine.Complete(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(verdict); err != nil {
			return err
		}
	} else {
		printVerdict(verdict)
	}

	if !verdict.OverallValid {
		// Non-zero exit so scripts can gate on the verdict.
		return fmt.Errorf("verification failed")
	}
	return nil
}

func printQuickResult(result *verify.QuickResult) error {
	if jsonOut {
		return printJSON(result)
	}

	if result.IsIntact {
		fmt.Printf("[ok] %s\n", result.Message)
	} else {
		fmt.Printf("[FAIL] %s\n", result.Message)
	}
	if result.FileHash != "" {
		fmt.Printf("  Digest: %s\n", result.FileHash)
	}
	if !result.IsIntact {
		return fmt.Errorf("integrity check failed")
	}
	return nil
}

func printVerdict(v *verify.Verdict) {
	fmt.Printf("Verifying evidence: %s (%s)\n", v.EvidenceID, v.Filename)
	fmt.Println("===============================================================")
	fmt.Println()

	fmt.Println("Content Digest")
	if v.Hash.IsValid {
		fmt.Printf("  [ok] %s\n", v.Hash.Message)
	} else {
		fmt.Printf("  [FAIL] %s\n", v.Hash.Message)
	}

	fmt.Println()
	fmt.Println("Digital Signature")
	switch {
	case v.Signature == nil:
		fmt.Println("  - No signature on record")
	case v.Signature.IsValid:
		fmt.Printf("  [ok] %s (key %s)\n", v.Signature.Message, v.Signature.KeyInfo.KeyID)
	default:
		fmt.Printf("  [FAIL] %s\n", v.Signature.Message)
	}

	fmt.Println()
	fmt.Println("Timestamp Anchor")
	switch {
	case v.Timestamp == nil:
		fmt.Println("  - No timestamp on record")
	case v.Timestamp.IsValid:
		fmt.Printf("  [ok] %s: anchored at %s (height %d)\n", v.Timestamp.Message,
			v.Timestamp.AnchorTime.Format("2006-01-02 15:04:05 UTC"), v.Timestamp.AnchorHeight)
	default:
		fmt.Printf("  [FAIL] %s: %s\n", v.Timestamp.Message, v.Timestamp.Error)
	}

	fmt.Println()
	fmt.Println("Chain of Custody")
	if v.Custody.IsValid {
		fmt.Printf("  [ok] %d entries, %d actor(s), no issues\n", v.Custody.TotalEntries, len(v.Custody.Actors))
	} else {
		fmt.Printf("  [FAIL] %d entries, %d issue(s)\n", v.Custody.TotalEntries, len(v.Custody.Issues))
		for _, issue := range v.Custody.Issues {
			fmt.Printf("    - %s\n", issue)
		}
	}

	fmt.Println()
	fmt.Println("===============================================================")
	fmt.Printf("Confidence: %d%%\n", v.ConfidenceScore)
	if v.OverallValid {
		fmt.Printf("VERDICT: [ok] %s\n", v.Summary)
	} else {
		fmt.Printf("VERDICT: [FAIL] %s\n", v.Summary)
	}
	for _, r := range v.Recommendations {
		fmt.Printf("  - %s\n", r)
	}
}
