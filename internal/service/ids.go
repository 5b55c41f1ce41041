package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// documentID derives the document identity from its content, so the
// same bytes always map to the same document.
func documentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
