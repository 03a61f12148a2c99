// Package custody provides the append-only chain-of-custody ledger.
//
// Every state-changing or verification operation against an evidence record
// appends one entry here. Entries are never updated, deleted, or reordered:
// the chain for a given evidence id, ordered by creation time, is the
// canonical handling history.
package custody

import "time"

// Well-known custody actions. The vocabulary is open for extension:
// unrecognized actions are accepted and normalized to upper-case.
const (
	ActionUpload         = "UPLOAD"
	ActionAccess         = "ACCESS"
	ActionVerification   = "VERIFICATION"
	ActionSignature      = "SIGNATURE"
	ActionTimestamp      = "TIMESTAMP"
	ActionTransfer       = "TRANSFER"
	ActionModification   = "MODIFICATION"
	ActionDeletion       = "DELETION"
	ActionIntegrityCheck = "INTEGRITY_CHECK"
)

// SystemActor identifies actions performed by hashguard itself rather than
// a resolved user.
const SystemActor = "SYSTEM"

// Entry is a single custody ledger record.
//
// Actor is stored as supplied and is not required to resolve to an existing
// account: custody history must remain valid even if the acting account is
// later deleted.
type Entry struct {
	ID         string         `json:"id"`
	EvidenceID string         `json:"evidence_id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ValidationResult is the outcome of a structural custody chain validation.
//
// The integrity score is a heuristic audit signal, not a cryptographic
// proof. Recommendations never affect validity; only issues do.
type ValidationResult struct {
	IsValid         bool     `json:"is_valid"`
	Issues          []string `json:"issues"`
	TotalEntries    int      `json:"total_entries"`
	IntegrityScore  int      `json:"integrity_score"`
	Recommendations []string `json:"recommendations"`
}

// Summary aggregates a custody chain for audit review.
type Summary struct {
	TotalActions int       `json:"total_actions"`
	FirstAction  time.Time `json:"first_action,omitzero"`
	LastAction   time.Time `json:"last_action,omitzero"`
	Actors       []string  `json:"actors"`
	Actions      []string  `json:"actions"`
}
