// Package signature creates and verifies detached Ed25519 signatures over
// content digests.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashguard/hashguard/internal/log"
)

// ErrKeyUnavailable is returned when signing is requested without loaded
// private key material.
var ErrKeyUnavailable = errors.New("signing key unavailable")

const pemBlockType = "PRIVATE KEY"

// Signer holds the process-wide key pair. It is read-mostly after
// initialization; initialization happens once, explicitly, at startup.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// Generated reports that the key pair was self-provisioned on this run.
	// A generated key has no external trust chain and must be flagged to
	// operators.
	Generated bool

	createdAt time.Time
}

// Load reads an existing PEM-encoded Ed25519 private key. It never
// generates key material; production profiles use this path.
func Load(keyPath string) (*Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return parseKey(keyPath, data)
}

// LoadOrGenerate loads the key at keyPath, generating and persisting a new
// key pair when none exists. Generation writes with O_EXCL, so concurrent
// first runs race safely: the loser re-reads the winner's key.
func LoadOrGenerate(keyPath string) (*Signer, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		return parseKey(keyPath, data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	block := &pem.Block{
		Type:  pemBlockType,
		Bytes: privateKey,
	}

	f, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			// Another process won the generation race; use its key.
			return Load(keyPath)
		}
		return nil, fmt.Errorf("saving key: %w", err)
	}
	if _, err := f.Write(pem.EncodeToMemory(block)); err != nil {
		f.Close()
		return nil, fmt.Errorf("saving key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("saving key: %w", err)
	}

	log.Warn("generated new signing key pair; it has no external trust chain", "path", keyPath)

	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		Generated:  true,
		createdAt:  time.Now().UTC(),
	}, nil
}

// FromKey builds a signer from raw key material (for tests that need a
// deterministic key pair).
func FromKey(privateKey ed25519.PrivateKey) *Signer {
	return &Signer{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		createdAt:  time.Now().UTC(),
	}
}

func parseKey(keyPath string, data []byte) (*Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, fmt.Errorf("invalid key file format: %s", keyPath)
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key length %d in %s", len(block.Bytes), keyPath)
	}

	createdAt := time.Time{}
	if info, err := os.Stat(keyPath); err == nil {
		createdAt = info.ModTime().UTC()
	}

	privateKey := ed25519.PrivateKey(block.Bytes)
	return &Signer{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		createdAt:  createdAt,
	}, nil
}

// PublicKey returns the public key bytes.
func (s *Signer) PublicKey() []byte {
	return s.publicKey
}

// PublicKeyPEM returns the PEM encoding of the public key, suitable for
// storing on an evidence record.
func (s *Signer) PublicKeyPEM() string {
	block := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: s.publicKey,
	}
	return string(pem.EncodeToMemory(block))
}

// Sign produces a detached signature over the digest string.
func (s *Signer) Sign(digest string) ([]byte, error) {
	if s == nil || s.privateKey == nil {
		return nil, ErrKeyUnavailable
	}
	return ed25519.Sign(s.privateKey, []byte(digest)), nil
}

// Verify checks a detached signature over the digest against the signer's
// public key. It fails closed: any verification problem yields false, with
// the cause logged for operators.
func (s *Signer) Verify(digest string, sig []byte) bool {
	if s == nil || s.publicKey == nil {
		log.Warn("signature verification failed: no public key loaded")
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		log.Warn("signature verification failed: bad signature length", "len", len(sig))
		return false
	}
	return ed25519.Verify(s.publicKey, []byte(digest), sig)
}

// VerifyWith checks a detached signature using only caller-supplied public
// key material. Useful for third-party verification without the private key.
func VerifyWith(publicKey []byte, digest string, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), []byte(digest), sig)
}

// ParsePublicKeyPEM decodes PEM public key material as stored on evidence
// records.
func ParsePublicKeyPEM(data string) ([]byte, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("invalid public key format")
	}
	if len(block.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length %d", len(block.Bytes))
	}
	return block.Bytes, nil
}

// KeyInfo describes the loaded key pair for operators and reports.
type KeyInfo struct {
	KeyID        string    `json:"key_id"`
	Fingerprint  string    `json:"fingerprint"`
	UserIDs      []string  `json:"user_ids"`
	Algorithm    string    `json:"algorithm"`
	BitSize      int       `json:"bit_size"`
	CreationTime time.Time `json:"creation_time"`
	Generated    bool      `json:"generated"`
}

// KeyInfo returns provenance metadata for the loaded key pair. The key id is
// the trailing 64 bits of the fingerprint, which is the SHA-256 of the
// public key.
func (s *Signer) KeyInfo() KeyInfo {
	info := InfoForPublicKey(s.publicKey)
	info.UserIDs = []string{"HashGuard System <system@hashguard.local>"}
	info.CreationTime = s.createdAt
	info.Generated = s.Generated
	return info
}

// InfoForPublicKey derives key id and fingerprint metadata from raw public
// key bytes, for keys supplied by evidence records rather than the local
// signer.
func InfoForPublicKey(publicKey []byte) KeyInfo {
	sum := sha256.Sum256(publicKey)
	fingerprint := hex.EncodeToString(sum[:])
	return KeyInfo{
		KeyID:       fingerprint[len(fingerprint)-16:],
		Fingerprint: fingerprint,
		Algorithm:   "Ed25519",
		BitSize:     256,
	}
}
