// Package digest computes and compares SHA-256 content digests.
//
// Digests are lower-case hexadecimal, 64 characters. This exact format is
// part of the wire contract with the anchor calendar and must be validated at
// every boundary that accepts a caller-supplied digest.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrContentUnavailable is returned when the referenced content cannot be read.
var ErrContentUnavailable = errors.New("content unavailable")

// Size is the length of a well-formed hex digest.
const Size = 64

// File streams the file at path through SHA-256 and returns the lower-case
// hex digest. The file is never loaded into memory at once.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrContentUnavailable, path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrContentUnavailable, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Buffer returns the lower-case hex SHA-256 digest of b.
func Buffer(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two hex digests refer to the same content,
// ignoring case.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

// IsWellFormed reports whether s is exactly 64 hexadecimal characters.
func IsWellFormed(s string) bool {
	if len(s) != Size {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
