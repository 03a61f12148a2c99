// Package config handles hashguard.yaml configuration parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents a hashguard.yaml deployment configuration.
type Config struct {
	// DataDir is the root directory for the evidence database, signing key,
	// and anchor proofs. Defaults to ~/.hashguard.
	DataDir string `yaml:"data_dir,omitempty"`

	// Database overrides the evidence database path. Relative paths are
	// resolved against DataDir.
	Database string `yaml:"database,omitempty"`

	Key     KeyConfig     `yaml:"key,omitempty"`
	Anchor  AnchorConfig  `yaml:"anchor,omitempty"`
	Scoring ScoringPolicy `yaml:"scoring,omitempty"`
}

// KeyConfig configures the signing key.
type KeyConfig struct {
	// Path to the PEM-encoded Ed25519 private key. Relative paths are
	// resolved against DataDir.
	Path string `yaml:"path,omitempty"`

	// RequireExisting refuses to self-provision a key at startup. Production
	// deployments should set this: a generated key has no external trust chain.
	RequireExisting bool `yaml:"require_existing,omitempty"`
}

// AnchorConfig configures the external timestamp calendar integration.
type AnchorConfig struct {
	// CalendarURL is the timestamp calendar endpoint. Empty disables external
	// anchoring; callers fall back to local timestamps.
	CalendarURL string `yaml:"calendar_url,omitempty"`

	// TimeoutSeconds bounds calendar submissions and verifications.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// ProofDir is where anchor proof files are written. Relative paths are
	// resolved against DataDir.
	ProofDir string `yaml:"proof_dir,omitempty"`
}

// ScoringPolicy holds the confidence score weights. The defaults are the
// inherited 40/30/20/10 weighting; deployments may tune them.
type ScoringPolicy struct {
	Hash                int `yaml:"hash,omitempty"`
	Custody             int `yaml:"custody,omitempty"`
	CustodyIssuePenalty int `yaml:"custody_issue_penalty,omitempty"`
	Signature           int `yaml:"signature,omitempty"`
	BrokenSignature     int `yaml:"broken_signature,omitempty"`
	Timestamp           int `yaml:"timestamp,omitempty"`
}

// DefaultScoring returns the standard confidence score weights.
func DefaultScoring() ScoringPolicy {
	return ScoringPolicy{
		Hash:                40,
		Custody:             30,
		CustodyIssuePenalty: 5,
		Signature:           20,
		BrokenSignature:     10,
		Timestamp:           10,
	}
}

// DefaultDataDir returns ~/.hashguard, or a relative fallback when the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hashguard"
	}
	return filepath.Join(home, ".hashguard")
}

// Load reads a hashguard.yaml from path. A missing file yields defaults;
// a present but malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.Database == "" {
		c.Database = "evidence.db"
	}
	if c.Key.Path == "" {
		c.Key.Path = "signing.pem"
	}
	if c.Anchor.TimeoutSeconds == 0 {
		c.Anchor.TimeoutSeconds = 10
	}
	if c.Anchor.ProofDir == "" {
		c.Anchor.ProofDir = "proofs"
	}
	if c.Scoring == (ScoringPolicy{}) {
		c.Scoring = DefaultScoring()
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Anchor.TimeoutSeconds < 0 {
		return fmt.Errorf("anchor.timeout_seconds must be positive, got %d", c.Anchor.TimeoutSeconds)
	}
	for name, w := range map[string]int{
		"scoring.hash":                  c.Scoring.Hash,
		"scoring.custody":               c.Scoring.Custody,
		"scoring.custody_issue_penalty": c.Scoring.CustodyIssuePenalty,
		"scoring.signature":             c.Scoring.Signature,
		"scoring.broken_signature":      c.Scoring.BrokenSignature,
		"scoring.timestamp":             c.Scoring.Timestamp,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, w)
		}
	}
	return nil
}

// DatabasePath returns the resolved evidence database path.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Database)
}

// KeyPath returns the resolved signing key path.
func (c *Config) KeyPath() string {
	return c.resolve(c.Key.Path)
}

// ProofDir returns the resolved anchor proof directory.
func (c *Config) ProofDir() string {
	return c.resolve(c.Anchor.ProofDir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
