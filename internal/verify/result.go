// Package verify orchestrates the independent integrity proofs of an
// evidence record into a single explainable verdict.
package verify

import (
	"time"

	"github.com/hashguard/hashguard/internal/signature"
)

// HashResult is the content digest sub-check.
type HashResult struct {
	IsValid          bool   `json:"is_valid"`
	StoredDigest     string `json:"stored_digest"`
	CalculatedDigest string `json:"calculated_digest"`
	Message          string `json:"message"`
}

// SignatureResult is the detached signature sub-check. Present on a verdict
// only when the record carries a signature reference and public key.
type SignatureResult struct {
	IsValid bool               `json:"is_valid"`
	KeyInfo *signature.KeyInfo `json:"key_info,omitempty"`
	Message string             `json:"message"`
	Error   string             `json:"error,omitempty"`
}

// TimestampResult is the external anchor sub-check. Present on a verdict
// only when the record carries a timestamp reference.
type TimestampResult struct {
	IsValid      bool      `json:"is_valid"`
	AnchorTime   time.Time `json:"anchor_time,omitzero"`
	AnchorHeight int64     `json:"anchor_height,omitempty"`
	Message      string    `json:"message"`
	Error        string    `json:"error,omitempty"`
}

// CustodyResult is the chain-of-custody sub-check.
type CustodyResult struct {
	IsValid      bool      `json:"is_valid"`
	TotalEntries int       `json:"total_entries"`
	FirstEntry   time.Time `json:"first_entry,omitzero"`
	LastEntry    time.Time `json:"last_entry,omitzero"`
	Actors       []string  `json:"actors"`
	Issues       []string  `json:"issues"`
}

// Verdict is the aggregated result of a complete verification. It is owned
// by the call that produced it and immutable once returned.
type Verdict struct {
	EvidenceID      string           `json:"evidence_id"`
	Filename        string           `json:"filename"`
	OverallValid    bool             `json:"overall_valid"`
	ConfidenceScore int              `json:"confidence_score"`
	Hash            HashResult       `json:"hash_verification"`
	Signature       *SignatureResult `json:"signature_verification,omitempty"`
	Timestamp       *TimestampResult `json:"timestamp_verification,omitempty"`
	Custody         CustodyResult    `json:"custody_verification"`
	VerifiedAt      time.Time        `json:"verified_at"`
	Summary         string           `json:"summary"`
	Recommendations []string         `json:"recommendations"`
}

// QuickResult is a hash-only integrity check, used where full orchestration
// cost is unwarranted.
type QuickResult struct {
	IsIntact    bool   `json:"is_intact"`
	FileHash    string `json:"file_hash"`
	HashMatches bool   `json:"hash_matches"`
	Message     string `json:"message"`
}
