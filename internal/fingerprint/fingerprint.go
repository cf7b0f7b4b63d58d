package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Digest is a hex-encoded SHA-256 content address. The zero value means
// "no fingerprint recorded".
type Digest string

// Sum computes the content address of raw bytes.
func Sum(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// SumReader streams src through the digest. I/O errors propagate unchanged.
func SumReader(src io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, src); err != nil {
		return "", err
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// Equal compares two digests byte for byte in constant time.
func (d Digest) Equal(other Digest) bool {
	if len(d) != len(other) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(d), []byte(other)) == 1
}

// IsZero reports whether no fingerprint has been recorded.
func (d Digest) IsZero() bool { return d == "" }

// Parse validates an externally supplied digest string.
func Parse(raw string) (Digest, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("fingerprint: expected %d hex characters, got %d", sha256.Size*2, len(raw))
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("fingerprint: not hex encoded: %w", err)
	}
	return Digest(raw), nil
}

func (d Digest) String() string { return string(d) }
