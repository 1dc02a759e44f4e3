package resettoken

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	dErrors "bastion/pkg/domain-errors"
)

// TokenBytes is the entropy of a raw token; it is delivered as 64 hex characters.
const TokenBytes = 32

// Generate returns a raw token and the SHA-256 hex hash that gets stored.
func Generate() (raw, hash string, err error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token")
	}
	raw = hex.EncodeToString(buf)
	return raw, Hash(raw), nil
}

// Hash is the one-way digest persisted in place of the raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether raw hashes to hash, in constant time.
func Verify(raw, hash string) bool {
	if raw == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Hash(raw)), []byte(hash)) == 1
}
