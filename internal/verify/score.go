package verify

import (
	"fmt"

	"github.com/hashguard/hashguard/internal/config"
)

// checks bundles the sub-results feeding aggregation. Signature and
// Timestamp are nil when the corresponding check did not run.
type checks struct {
	Hash      HashResult
	Signature *SignatureResult
	Timestamp *TimestampResult
	Custody   CustodyResult
}

// scoreRule is one row of the confidence scoring law. The law is kept as an
// explicit table so every weight can be audited and tested in isolation.
type scoreRule struct {
	name  string
	delta func(c checks, p config.ScoringPolicy) int
}

var scoreRules = []scoreRule{
	{
		name: "valid content digest",
		delta: func(c checks, p config.ScoringPolicy) int {
			if c.Hash.IsValid {
				return p.Hash
			}
			return 0
		},
	},
	{
		name: "custody chain, with partial credit per issue",
		delta: func(c checks, p config.ScoringPolicy) int {
			if c.Custody.IsValid {
				return p.Custody
			}
			partial := p.Custody - len(c.Custody.Issues)*p.CustodyIssuePenalty
			if partial < 0 {
				return 0
			}
			return partial
		},
	},
	{
		name: "detached signature; a broken signature is worse than none",
		delta: func(c checks, p config.ScoringPolicy) int {
			switch {
			case c.Signature == nil:
				return 0
			case c.Signature.IsValid:
				return p.Signature
			default:
				return -p.BrokenSignature
			}
		},
	},
	{
		name: "timestamp anchor",
		delta: func(c checks, p config.ScoringPolicy) int {
			if c.Timestamp != nil && c.Timestamp.IsValid {
				return p.Timestamp
			}
			return 0
		},
	},
}

// confidenceScore applies the scoring table and clamps to [0,100].
func confidenceScore(c checks, p config.ScoringPolicy) int {
	score := 0
	for _, rule := range scoreRules {
		score += rule.delta(c, p)
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// overallValid derives the binary verdict from the mandatory checks plus any
// optional check that actually ran. Absent signature or timestamp proofs do
// not invalidate; they are optional strengthening proofs.
func overallValid(c checks) bool {
	if !c.Hash.IsValid {
		return false
	}
	if !c.Custody.IsValid {
		return false
	}
	if c.Signature != nil && !c.Signature.IsValid {
		return false
	}
	return true
}

// adviceRule is one row of the recommendation table.
type adviceRule struct {
	when    func(c checks, valid bool, score int) bool
	message string
}

var adviceRules = []adviceRule{
	{
		when:    func(c checks, valid bool, score int) bool { return !valid },
		message: "Do NOT rely on this evidence until the identified problems are resolved",
	},
	{
		when:    func(c checks, valid bool, score int) bool { return valid && score < 70 },
		message: "Consider adding a digital signature for stronger assurance",
	},
	{
		when:    func(c checks, valid bool, score int) bool { return !c.Hash.IsValid },
		message: "CRITICAL: file content has been modified - digest mismatch",
	},
	{
		when:    func(c checks, valid bool, score int) bool { return !c.Custody.IsValid },
		message: "CRITICAL: problems detected in the custody chain",
	},
	{
		when:    func(c checks, valid bool, score int) bool { return c.Signature == nil },
		message: "Add a digital signature to guarantee authenticity",
	},
	{
		when:    func(c checks, valid bool, score int) bool { return c.Timestamp == nil },
		message: "Add a timestamp anchor for temporal proof",
	},
	{
		when:    func(c checks, valid bool, score int) bool { return len(c.Custody.Issues) > 0 },
		message: "Review the problems in the custody chain",
	},
}

// summarize produces the human-readable summary and the ordered
// recommendation list.
func summarize(c checks, valid bool, score int) (string, []string) {
	var summary string
	if valid {
		summary = fmt.Sprintf("Evidence VALID with %d%% confidence. ", score)
		switch {
		case score < 70:
			summary += "Improvements are recommended."
		case score < 90:
			summary += "Good integrity, with small improvements possible."
		default:
			summary += "Excellent integrity and authenticity."
		}
	} else {
		summary = fmt.Sprintf("Evidence INVALID (%d%% confidence). Critical problems detected.", score)
	}

	recommendations := []string{}
	for _, rule := range adviceRules {
		if rule.when(c, valid, score) {
			recommendations = append(recommendations, rule.message)
		}
	}
	return summary, recommendations
}
