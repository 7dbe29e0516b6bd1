// Package digest computes the hex encoded SHA-256 digests used to fingerprint
// build inputs and to identify cached artifacts.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"go.trai.ch/zerr"
)

// Bytes returns the digest of b
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// String returns the digest of the UTF-8 bytes of s
func String(s string) string {
	return Bytes([]byte(s))
}

// File returns the digest of a file's content
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to open file for hashing"), "path", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to hash file"), "path", path)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
