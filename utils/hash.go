package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
)

// ContentKey digests raw image bytes. Two byte-identical uploads always
// collide here; two photos of the same board never do (that is the semantic
// signature's job).
func ContentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TokenDigest produces the stored form of a device credential. The digest is
// deterministic so authentication can look a device up by it; DEVICE_TOKEN_PEPPER
// salts the whole table server-side when set.
func TokenDigest(token string) string {
	h := sha256.New()
	h.Write([]byte(os.Getenv("DEVICE_TOKEN_PEPPER")))
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// NewDeviceToken issues a 32-byte random credential, hex encoded.
func NewDeviceToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate device token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SecureEqual compares two digests in constant time.
func SecureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
