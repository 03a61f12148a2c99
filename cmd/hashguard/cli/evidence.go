package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashguard/hashguard/internal/evidence"
)

var (
	listLimit  int
	listOffset int
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Inspect stored evidence records",
}

var evidenceShowCmd = &cobra.Command{
	Use:   "show <evidence-id>",
	Short: "Show a single evidence record",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvidenceShow,
}

var evidenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evidence records, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEvidenceList,
}

var evidenceFindCmd = &cobra.Command{
	Use:   "find <digest>",
	Short: "Find the evidence record for a content digest",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvidenceFind,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceShowCmd)
	evidenceCmd.AddCommand(evidenceListCmd)
	evidenceCmd.AddCommand(evidenceFindCmd)
	evidenceListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum records to return")
	evidenceListCmd.Flags().IntVar(&listOffset, "offset", 0, "records to skip")
}

func runEvidenceShow(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(rec)
	}
	printRecord(rec)
	return nil
}

func runEvidenceList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	records, err := store.List(ctx, listLimit, listOffset)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(records)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d evidence record(s), showing %d\n\n", total, len(records))
	for _, rec := range records {
		marks := ""
		if rec.HasSignature() {
			marks += " [signed]"
		}
		if rec.HasTimestamp() {
			marks += " [anchored]"
		}
		fmt.Printf("%s  %s  %s%s\n", rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"), rec.Filename, marks)
	}
	return nil
}

func runEvidenceFind(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.FindByDigest(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(rec)
	}
	printRecord(rec)
	return nil
}

func printRecord(rec *evidence.Record) {
	fmt.Printf("Evidence: %s\n", rec.ID)
	fmt.Printf("  File:       %s\n", rec.Filename)
	fmt.Printf("  Path:       %s\n", rec.Path)
	fmt.Printf("  Digest:     %s\n", rec.Digest)
	if rec.CollectedBy != "" {
		fmt.Printf("  Collected:  by %s\n", rec.CollectedBy)
	}
	if rec.HasSignature() {
		fmt.Printf("  Signature:  %s\n", rec.SignatureFile)
	}
	if rec.HasTimestamp() {
		fmt.Printf("  Timestamp:  %s\n", rec.TimestampFile)
	}
	fmt.Printf("  Created:    %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	for k, v := range rec.Metadata {
		fmt.Printf("  Meta:       %s=%v\n", k, v)
	}
}
