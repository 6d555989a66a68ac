package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewAccountID returns a time-ordered UUIDv7 so account rows sort by
// creation in both SQL backends.
func NewAccountID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewToken returns a random URL-safe token with 256 bits of entropy.
// Used for session bearer tokens and email verification links.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 digest of a token.
// Only digests are persisted so a leaked Redis dump cannot replay sessions.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
