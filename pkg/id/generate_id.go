// Package id generates opaque public identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID32 returns 32 lowercase hex characters with no separators. Outbox
// client references use these so a retried intent stays recognizable without
// exposing database keys.
func NewID32() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
