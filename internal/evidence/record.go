// Package evidence provides the content-addressed evidence record store.
package evidence

import "time"

// Record describes a preserved digital artifact and its integrity metadata.
//
// Digest is set exactly once, at creation, and never changes: any content
// change must produce a new record.
type Record struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	Path          string         `json:"path"`
	Digest        string         `json:"digest"`
	SignatureFile string         `json:"signature_file,omitempty"`
	PublicKey     string         `json:"public_key,omitempty"`
	TimestampFile string         `json:"timestamp_file,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CollectedBy   string         `json:"collected_by,omitempty"`
	CollectedAt   time.Time      `json:"collected_at,omitzero"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HasSignature reports whether the record carries a detached signature and
// the public key material needed to verify it.
func (r *Record) HasSignature() bool {
	return r.SignatureFile != "" && r.PublicKey != ""
}

// HasTimestamp reports whether the record carries a timestamp anchor proof.
func (r *Record) HasTimestamp() bool {
	return r.TimestampFile != ""
}
