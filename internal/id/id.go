// Package id provides unique identifier generation for hashguard resources.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Generate creates a unique identifier with the given prefix.
// Format: <prefix>_<16 hex chars> (e.g., "ev_1a2b3c4d5e6f7890", "cst_0badc0de00112233").
// Uses 8 cryptographically random bytes encoded as 16 hex characters.
func Generate(prefix string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails (extremely unlikely)
		return prefix + "_" + hex.EncodeToString([]byte(time.Now().Format("150405.0000000")))[:16]
	}
	return prefix + "_" + hex.EncodeToString(b)
}
