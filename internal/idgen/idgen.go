// Package idgen provides cryptographically random ID generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Prefixes for the entity kinds the coordinator hands out.
const (
	SessionPrefix     = "sess_"
	ParticipantPrefix = "part_"
	ConnectionPrefix  = "conn_"
)

// NewSessionID returns a fresh signing-session ID.
func NewSessionID() string { return WithPrefix(SessionPrefix) }

// NewParticipantID returns a fresh participant ID. A participant that
// reconnects gets a new ID; identity across connections is the public key.
func NewParticipantID() string { return WithPrefix(ParticipantPrefix) }

// NewConnectionID returns a fresh socket connection ID.
func NewConnectionID() string { return WithPrefix(ConnectionPrefix) }

// WithPrefix generates a random ID of prefix + 16 hex chars (8 random bytes).
func WithPrefix(prefix string) string {
	return prefix + Hex(8)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
