package core

import (
	"crypto/rand"
	"encoding/base64"
)

// NewSessionID generates an opaque workspace session identifier:
// 16 random bytes, base64url without padding.
func NewSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}
