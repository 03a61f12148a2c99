// Package cli implements the hashguard command-line interface using Cobra.
// It provides commands for ingesting evidence, verifying its integrity, and
// inspecting the chain of custody.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashguard/hashguard/internal/anchor"
	"github.com/hashguard/hashguard/internal/config"
	"github.com/hashguard/hashguard/internal/custody"
	"github.com/hashguard/hashguard/internal/evidence"
	"github.com/hashguard/hashguard/internal/log"
	"github.com/hashguard/hashguard/internal/signature"
	"github.com/hashguard/hashguard/internal/verify"
)

var (
	verbose bool
	jsonOut bool
	cfgPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hashguard",
	Short: "HashGuard - Evidence integrity and chain-of-custody engine",
	Long: `HashGuard preserves the integrity of digital evidence.

Every file ingested is digested with SHA-256, optionally signed and anchored
to an external timestamp calendar, and tracked through an append-only
chain-of-custody ledger. Verification combines all available proofs into a
single verdict with a confidence score.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Init(log.Options{
			Verbose:    verbose,
			JSONFormat: jsonOut,
		})

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "path to hashguard.yaml")
}

func defaultConfigPath() string {
	return filepath.Join(config.DefaultDataDir(), "hashguard.yaml")
}

// openStore opens the evidence store and custody ledger on the configured
// database, creating the data directory on first use.
func openStore() (*evidence.Store, *custody.Ledger, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := evidence.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}

	ledger, err := custody.NewLedger(store.DB(), store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, ledger, nil
}

func anchorClient() *anchor.Client {
	return anchor.NewClient(cfg.Anchor.CalendarURL, cfg.ProofDir(),
		time.Duration(cfg.Anchor.TimeoutSeconds)*time.Second)
}

// loadSigner loads the configured signing key. Self-provisioning is allowed
// unless the deployment requires a pre-existing key.
func loadSigner() (*signature.Signer, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if cfg.Key.RequireExisting {
		return signature.Load(cfg.KeyPath())
	}
	return signature.LoadOrGenerate(cfg.KeyPath())
}

func newEngine(store *evidence.Store, ledger *custody.Ledger) *verify.Engine {
	return verify.New(store, ledger, anchorClient(), cfg.Scoring)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseKeyValues turns k=v pairs from repeated flags into a details map.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair: %q", p)
		}
		m[k] = v
	}
	return m, nil
}
