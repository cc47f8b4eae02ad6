package visitors

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	visitorIDBytes = 16
	sessionIDBytes = 20
)

// NewVisitorID returns a random 32 character hex identifier.
func NewVisitorID() string {
	return randomHex(visitorIDBytes)
}

// NewSessionID returns a random 40 character hex identifier.
func NewSessionID() string {
	return randomHex(sessionIDBytes)
}

func randomHex(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
