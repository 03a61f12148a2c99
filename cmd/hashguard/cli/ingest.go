package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hashguard/hashguard/internal/anchor"
	"github.com/hashguard/hashguard/internal/custody"
	"github.com/hashguard/hashguard/internal/digest"
	"github.com/hashguard/hashguard/internal/evidence"
	"github.com/hashguard/hashguard/internal/log"
)

var (
	ingestCollectedBy string
	ingestSign        bool
	ingestTimestamp   bool
	ingestMeta        []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Register a file as evidence",
	Long: `Register a file as evidence.

The file is digested with SHA-256 and recorded in the evidence store; the
initial UPLOAD entry is appended to its custody chain. With --sign a detached
signature over the digest is created with the local key; with --timestamp the
digest is submitted to the configured anchor calendar.

Example:
  hashguard ingest ./disk-image.dd --collected-by alice --sign --timestamp`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestCollectedBy, "collected-by", "", "actor recorded on the UPLOAD entry")
	ingestCmd.Flags().BoolVar(&ingestSign, "sign", false, "create a detached signature over the digest")
	ingestCmd.Flags().BoolVar(&ingestTimestamp, "timestamp", false, "anchor the digest to the timestamp calendar")
	ingestCmd.Flags().StringArrayVar(&ingestMeta, "meta", nil, "metadata as key=value (repeatable)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	meta, err := parseKeyValues(ingestMeta)
	if err != nil {
		return err
	}

	d, err := digest.File(path)
	if err != nil {
		return err
	}

	store, ledger, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec := &evidence.Record{
		Filename:    filepath.Base(path),
		Path:        path,
		Digest:      d,
		Metadata:    meta,
		CollectedBy: ingestCollectedBy,
	}

	ctx := cmd.Context()

	if ingestSign {
		signer, signErr := loadSigner()
		if signErr != nil {
			return signErr
		}
		sig, signErr := signer.Sign(d)
		if signErr != nil {
			return signErr
		}
		sigPath := filepath.Join(cfg.DataDir, "signatures", d+".sig")
		if signErr = os.MkdirAll(filepath.Dir(sigPath), 0755); signErr != nil {
			return fmt.Errorf("creating signature directory: %w", signErr)
		}
		if signErr = os.WriteFile(sigPath, sig, 0644); signErr != nil {
			return fmt.Errorf("writing signature: %w", signErr)
		}
		rec.SignatureFile = sigPath
		rec.PublicKey = signer.PublicKeyPEM()
	}

	var localTS *anchor.LocalTimestamp
	if ingestTimestamp {
		ref, tsErr := anchorClient().Create(ctx, d)
		switch {
		case tsErr == nil:
			rec.TimestampFile = ref
		case errors.Is(tsErr, anchor.ErrServiceUnavailable):
			// No calendar configured; fall back to a local timestamp.
			ts := anchor.CreateLocal(d)
			localTS = &ts
			log.Warn("no anchor calendar configured, recorded local timestamp only")
		default:
			return tsErr
		}
	}

	created, err := store.Create(ctx, rec)
	if err != nil {
		return err
	}

	actor := ingestCollectedBy
	if actor == "" {
		actor = custody.SystemActor
	}
	if _, err := ledger.Append(ctx, created.ID, custody.ActionUpload, actor, map[string]any{
		"filename": created.Filename,
		"digest":   created.Digest,
	}); err != nil {
		return err
	}
	if created.HasSignature() {
		if _, err := ledger.Append(ctx, created.ID, custody.ActionSignature, custody.SystemActor, map[string]any{
			"signature_file": created.SignatureFile,
		}); err != nil {
			return err
		}
	}
	if created.HasTimestamp() {
		if _, err := ledger.Append(ctx, created.ID, custody.ActionTimestamp, custody.SystemActor, map[string]any{
			"timestamp_file": created.TimestampFile,
		}); err != nil {
			return err
		}
	}

	if jsonOut {
		return printJSON(created)
	}

	fmt.Printf("Evidence registered: %s\n", created.ID)
	fmt.Printf("  File:   %s\n", created.Filename)
	fmt.Printf("  Digest: %s\n", created.Digest)
	if created.HasSignature() {
		fmt.Printf("  Signature: %s\n", created.SignatureFile)
	}
	if created.HasTimestamp() {
		fmt.Printf("  Timestamp proof: %s\n", created.TimestampFile)
	}
	if localTS != nil {
		fmt.Printf("  Local timestamp: %s (%s)\n", localTS.Timestamp.Format("2006-01-02 15:04:05 UTC"), localTS.Source)
	}
	return nil
}
